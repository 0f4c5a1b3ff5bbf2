package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shortmark/shortmark/internal/grading"
	"github.com/shortmark/shortmark/internal/store"
)

var questionCmd = &cobra.Command{
	Use:   "question",
	Short: "Manage gradable questions",
}

var questionAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add or update a short-answer question",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuestionAdd,
}

func init() {
	f := questionAddCmd.Flags()
	f.String("subject", "science", "Subject (science, english)")
	f.String("topic", "", "Topic label shown to the grader")
	f.Int("year", 0, "School year level")
	f.String("stem", "", "Question text")
	f.String("solution", "", "Authoritative solution text")
	f.Int("weight", 1, "Points the question is worth")
	_ = questionAddCmd.MarkFlagRequired("stem")
	_ = questionAddCmd.MarkFlagRequired("solution")

	questionCmd.AddCommand(questionAddCmd)
}

func runQuestionAdd(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	subject := grading.Subject(v.GetString("subject"))
	if !grading.SupportedSubject(subject) {
		return fmt.Errorf("unsupported subject %q (want science or english)", subject)
	}

	dbPath, err := resolveDBPath(v)
	if err != nil {
		return fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()

	q := &grading.QuestionContext{
		ID:           args[0],
		Type:         grading.QuestionTypeShortAnswer,
		Subject:      subject,
		Topic:        v.GetString("topic"),
		Year:         v.GetInt("year"),
		StemText:     v.GetString("stem"),
		SolutionText: v.GetString("solution"),
		Weight:       v.GetInt("weight"),
	}
	if err := s.PutQuestion(cmd.Context(), q); err != nil {
		return err
	}

	fmt.Printf("question %s saved\n", q.ID)
	return nil
}
