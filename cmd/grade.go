package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shortmark/shortmark/internal/grading"
	"github.com/shortmark/shortmark/internal/store"
)

var gradeCmd = &cobra.Command{
	Use:   "grade [question-id] <answer text>",
	Short: "Grade one answer from the command line",
	Long: "Grades a single student answer and prints the grading record as JSON.\n" +
		"With a question-id the stored question is used; with --stem and --solution\n" +
		"an ad-hoc question is graded without being stored first. Without provider\n" +
		"credentials the similarity heuristic grades alone.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runGrade,
}

func init() {
	f := gradeCmd.Flags()
	f.String("attempt", "cli", "Attempt id to grade under")
	f.String("escalation", "auto", "Escalation policy (auto, never, always)")
	f.Int("hints", 0, "Number of hints the student used")
	f.Bool("idk", false, "Student pressed \"I don't know\" before answering")
	f.Bool("save-rubric", false, "Cache inferred key facts for this question")
	f.String("stem", "", "Ad-hoc question text (grades without a stored question)")
	f.String("solution", "", "Ad-hoc reference solution (required with --stem)")
	f.String("subject", "science", "Ad-hoc question subject")
	f.String("topic", "", "Ad-hoc question topic")
	f.Int("year", 0, "Ad-hoc student year level")
	f.Int("weight", 10, "Ad-hoc question point value")
}

func runGrade(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	logger := setupLogging(v)

	attemptID := v.GetString("attempt")

	dbPath, err := resolveDBPath(v)
	if err != nil {
		return fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()

	ctx := cmd.Context()

	var questionID, answer string
	switch {
	case len(args) == 2:
		questionID, answer = args[0], args[1]
	case v.GetString("stem") != "":
		if v.GetString("solution") == "" {
			return fmt.Errorf("--stem requires --solution")
		}
		answer = args[0]
		questionID = "adhoc-" + uuid.NewString()
		q := &grading.QuestionContext{
			ID:           questionID,
			Type:         grading.QuestionTypeShortAnswer,
			Subject:      grading.Subject(v.GetString("subject")),
			Topic:        v.GetString("topic"),
			Year:         v.GetInt("year"),
			StemText:     v.GetString("stem"),
			SolutionText: v.GetString("solution"),
			Weight:       v.GetInt("weight"),
		}
		if err := s.PutQuestion(ctx, q); err != nil {
			return fmt.Errorf("store ad-hoc question: %w", err)
		}
	default:
		return fmt.Errorf("either a question-id argument or --stem/--solution is required")
	}

	meta := grading.AttemptMeta{HintUses: v.GetInt("hints"), UsedDontKnow: v.GetBool("idk")}
	if meta != (grading.AttemptMeta{}) {
		if err := s.RecordAttemptSignals(ctx, attemptID, questionID, meta); err != nil {
			return err
		}
	}

	registry, providerName, err := buildRegistry(ctx, logger, s)
	if err != nil {
		return err
	}

	svc := grading.NewService(registry, s, grading.DefaultServiceConfig(providerName), logger)

	res, err := svc.Grade(ctx, grading.Call{
		AttemptID:     attemptID,
		QuestionID:    questionID,
		StudentAnswer: answer,
		Options: grading.CallOptions{
			PersistWeakRubric: v.GetBool("save-rubric"),
			Escalation:        grading.EscalationPolicy(v.GetString("escalation")),
		},
	})
	if err != nil {
		return fmt.Errorf("grade: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
