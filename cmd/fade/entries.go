package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"fade-go/internal/app"
	"fade-go/internal/fade"

	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04"

// parseQuestions turns "question=answer" flags into challenge questions.
func parseQuestions(raw []string) ([]fade.ChallengeQuestion, error) {
	var out []fade.ChallengeQuestion
	for _, r := range raw {
		q, a, ok := strings.Cut(r, "=")
		if !ok || strings.TrimSpace(q) == "" || strings.TrimSpace(a) == "" {
			return nil, fmt.Errorf("%w: question %q must be QUESTION=ANSWER", fade.ErrValidationFailed, r)
		}
		out = append(out, fade.ChallengeQuestion{Question: strings.TrimSpace(q), Answer: strings.TrimSpace(a)})
	}
	return out, nil
}

// readContent returns --content, or the file named by --content-file ("-" for stdin).
func readContent(cmd *cobra.Command) (string, bool, error) {
	if path, _ := cmd.Flags().GetString("content-file"); path != "" {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return "", false, fmt.Errorf("reading content: %w", err)
		}
		return string(data), true, nil
	}
	if cmd.Flags().Changed("content") {
		content, _ := cmd.Flags().GetString("content")
		return content, true, nil
	}
	return "", false, nil
}

func printEntryLine(e *fade.Entry, threshold int) {
	tags := ""
	if len(e.Tags) > 0 {
		tags = "  [" + strings.Join(e.Tags, ", ") + "]"
	}
	fmt.Printf("%s  %3d%%  %-8s  %s  %s%s\n",
		shortID(e.ID),
		e.DecayLevel,
		fade.DecayStateOf(e.DecayLevel, threshold),
		e.CreatedAt.Local().Format(timeLayout),
		e.Title,
		tags,
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// add command
var addCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Record a new memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		tags, _ := cmd.Flags().GetStringSlice("tag")
		attach, _ := cmd.Flags().GetStringSlice("attach")
		recursive, _ := cmd.Flags().GetBool("recursive")
		rawQuestions, _ := cmd.Flags().GetStringArray("question")

		content, _, err := readContent(cmd)
		if err != nil {
			return err
		}
		questions, err := parseQuestions(rawQuestions)
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "add")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		entry, err := a.AddEntry(fade.Draft{
			Title:              args[0],
			Content:            content,
			Tags:               tags,
			ChallengeQuestions: questions,
		}, attach, recursive)
		if err != nil {
			return fmt.Errorf("adding entry: %w", err)
		}

		fmt.Printf("Added %s with %d attachment(s)\n", entry.ID, len(entry.Attachments))
		return nil
	},
}

// edit command
var editCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Change a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "edit")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		id, err := resolveID(a, args[0])
		if err != nil {
			return err
		}
		entry, err := a.Store().Get(id)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("title") {
			entry.Title, _ = cmd.Flags().GetString("title")
		}
		content, ok, err := readContent(cmd)
		if err != nil {
			return err
		}
		if ok {
			entry.Content = content
		}
		if cmd.Flags().Changed("tag") {
			entry.Tags, _ = cmd.Flags().GetStringSlice("tag")
		}
		addTags, _ := cmd.Flags().GetStringSlice("add-tag")
		entry.Tags = append(entry.Tags, addTags...)
		removeTags, _ := cmd.Flags().GetStringSlice("remove-tag")
		entry.Tags = slices.DeleteFunc(entry.Tags, func(t string) bool { return slices.Contains(removeTags, t) })

		if clearQuestions, _ := cmd.Flags().GetBool("clear-questions"); clearQuestions {
			entry.ChallengeQuestions = nil
		}
		rawQuestions, _ := cmd.Flags().GetStringArray("question")
		questions, err := parseQuestions(rawQuestions)
		if err != nil {
			return err
		}
		entry.ChallengeQuestions = append(entry.ChallengeQuestions, questions...)

		detach, _ := cmd.Flags().GetStringSlice("detach")
		for _, attID := range detach {
			if _, ok := entry.Attachments[attID]; !ok {
				return fmt.Errorf("%w: attachment %s", fade.ErrNotFound, attID)
			}
			delete(entry.Attachments, attID)
		}

		if err := a.Store().Update(entry); err != nil {
			return fmt.Errorf("updating entry: %w", err)
		}

		attach, _ := cmd.Flags().GetStringSlice("attach")
		if len(attach) > 0 {
			recursive, _ := cmd.Flags().GetBool("recursive")
			_, n, err := a.AttachFiles(id, attach, recursive)
			if err != nil {
				return err
			}
			fmt.Printf("Attached %d file(s)\n", n)
		}

		fmt.Printf("Updated %s\n", id)
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories, newest first",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		tag, _ := cmd.Flags().GetString("tag")

		a, err := newApp(cmd, "list")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		entries, err := a.Store().List()
		if err != nil {
			return err
		}
		if tag != "" {
			entries = slices.DeleteFunc(entries, func(e *fade.Entry) bool { return !slices.Contains(e.Tags, tag) })
		}

		if len(entries) == 0 {
			fmt.Println("No memories yet.")
			return nil
		}
		for _, e := range entries {
			printEntryLine(e, a.Monitor().Threshold())
		}
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		saveDir, _ := cmd.Flags().GetString("save-attachments")

		a, err := newApp(cmd, "show")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		id, err := resolveID(a, args[0])
		if err != nil {
			return err
		}
		e, err := a.Store().Get(id)
		if err != nil {
			return err
		}

		fmt.Printf("ID:       %s\n", e.ID)
		fmt.Printf("Title:    %s\n", e.Title)
		fmt.Printf("Created:  %s\n", e.CreatedAt.Local().Format(timeLayout))
		if e.RestoredAt != nil {
			fmt.Printf("Restored: %s\n", e.RestoredAt.Local().Format(timeLayout))
		}
		fmt.Printf("Decay:    %d%% (%s)\n", e.DecayLevel, fade.DecayStateOf(e.DecayLevel, a.Monitor().Threshold()))
		if len(e.Tags) > 0 {
			fmt.Printf("Tags:     %s\n", strings.Join(e.Tags, ", "))
		}
		if len(e.ChallengeQuestions) > 0 {
			fmt.Printf("Quiz:     %d question(s)\n", len(e.ChallengeQuestions))
		}
		if e.Content != "" {
			fmt.Printf("\n%s\n", e.Content)
		}

		if len(e.Attachments) > 0 {
			fmt.Println("\nAttachments:")
			ids := make([]string, 0, len(e.Attachments))
			for attID := range e.Attachments {
				ids = append(ids, attID)
			}
			sort.Slice(ids, func(i, j int) bool { return e.Attachments[ids[i]].Name < e.Attachments[ids[j]].Name })
			for _, attID := range ids {
				ref := e.Attachments[attID]
				fmt.Printf("  %s  %8d  %s\n", attID, ref.Size, ref.Name)
				if saveDir != "" {
					path, err := a.SaveAttachment(e.ID, attID, saveDir)
					if err != nil {
						return fmt.Errorf("saving %s: %w", ref.Name, err)
					}
					fmt.Printf("            -> %s\n", path)
				}
			}
		}
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Answer a memory's quiz to restore it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		answers, _ := cmd.Flags().GetStringArray("answer")

		a, err := newApp(cmd, "restore")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		id, err := resolveID(a, args[0])
		if err != nil {
			return err
		}
		questions, err := a.Restorer().Questions(id)
		if err != nil {
			return err
		}

		if len(answers) == 0 && len(questions) > 0 {
			if !app.IsInteractive(os.Stdin) {
				return fmt.Errorf("%d question(s) to answer: pass --answer for each", len(questions))
			}
			answers = askQuestions(questions)
		}

		result, restored, err := a.Restorer().Attempt(id, answers)
		if err != nil {
			return err
		}
		if !result.Passed {
			fmt.Printf("Not quite: %d of %d correct. The memory keeps fading.\n", result.Correct, result.Total)
			return nil
		}
		fmt.Printf("Restored %q (%d of %d correct). Decay reset to %d%%.\n", restored.Title, result.Correct, result.Total, restored.DecayLevel)
		return nil
	},
}

func askQuestions(questions []string) []string {
	in := bufio.NewReader(os.Stdin)
	answers := make([]string, len(questions))
	for i, q := range questions {
		fmt.Printf("%d/%d %s\n> ", i+1, len(questions), q)
		line, _ := in.ReadString('\n')
		answers[i] = strings.TrimRight(line, "\r\n")
	}
	return answers
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "delete")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		id, err := resolveID(a, args[0])
		if isNotFound(err) {
			fmt.Println("Nothing to delete.")
			return nil
		}
		if err != nil {
			return err
		}
		if err := a.Store().Delete(id); err != nil {
			return fmt.Errorf("deleting entry: %w", err)
		}
		fmt.Printf("Deleted %s\n", id)
		return nil
	},
}

// tags command
var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List every tag in use",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "tags")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		tags, err := a.Store().AllTags()
		if err != nil {
			return err
		}
		for _, t := range tags {
			fmt.Println(t)
		}
		return nil
	},
}

// at-risk command
var atRiskCmd = &cobra.Command{
	Use:   "at-risk",
	Short: "List memories about to fade",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "at-risk")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		entries, err := a.Monitor().AtRisk()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Nothing is fading.")
			return nil
		}
		for _, e := range entries {
			printEntryLine(e, a.Monitor().Threshold())
		}
		return nil
	},
}

// check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one risk check and request a reminder if one is due",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "check")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		result, err := a.Monitor().Check()
		if err != nil {
			return err
		}
		fmt.Printf("%d memor%s at risk\n", len(result.AtRisk), plural(len(result.AtRisk), "y", "ies"))
		if n := result.Notification; n != nil {
			fmt.Printf("%s: %s\n", n.Title, n.Body)
		}
		return nil
	},
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// achievements command
var achievementsCmd = &cobra.Command{
	Use:   "achievements",
	Short: "Show restoration streaks and achievements",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "achievements")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		snap, err := a.Achievements().Snapshot()
		if err != nil {
			return err
		}
		fmt.Printf("Restored: %d   Streak: %d day(s)   Longest: %d day(s)\n\n", snap.TotalRestored, snap.CurrentStreak, snap.LongestStreak)
		for _, ach := range snap.Achievements {
			mark := "[ ]"
			when := ""
			if ach.Unlocked() {
				mark = "[x]"
				when = "  " + ach.UnlockedAt.Local().Format(time.DateOnly)
			}
			fmt.Printf("%s %-20s %s%s\n", mark, ach.Title, ach.Description, when)
		}
		return nil
	},
}

func initEntryCommands() {
	addCmd.Flags().StringP("content", "c", "", "Memory text")
	addCmd.Flags().String("content-file", "", "Read memory text from a file (- for stdin)")
	addCmd.Flags().StringSliceP("tag", "t", nil, "Tag (repeatable)")
	addCmd.Flags().StringSliceP("attach", "a", nil, "File or directory to attach (repeatable)")
	addCmd.Flags().BoolP("recursive", "r", false, "Recurse into attached directories")
	addCmd.Flags().StringArrayP("question", "q", nil, "Quiz question as QUESTION=ANSWER (repeatable)")

	editCmd.Flags().String("title", "", "New title")
	editCmd.Flags().StringP("content", "c", "", "New memory text")
	editCmd.Flags().String("content-file", "", "Read new memory text from a file (- for stdin)")
	editCmd.Flags().StringSliceP("tag", "t", nil, "Replace all tags")
	editCmd.Flags().StringSlice("add-tag", nil, "Add a tag")
	editCmd.Flags().StringSlice("remove-tag", nil, "Remove a tag")
	editCmd.Flags().StringSliceP("attach", "a", nil, "File or directory to attach")
	editCmd.Flags().BoolP("recursive", "r", false, "Recurse into attached directories")
	editCmd.Flags().StringSlice("detach", nil, "Attachment id to remove")
	editCmd.Flags().StringArrayP("question", "q", nil, "Add a quiz question as QUESTION=ANSWER")
	editCmd.Flags().Bool("clear-questions", false, "Remove all quiz questions first")

	listCmd.Flags().StringP("tag", "t", "", "Only show memories with this tag")
	showCmd.Flags().String("save-attachments", "", "Write attachments into this directory")
	restoreCmd.Flags().StringArray("answer", nil, "Answer, in question order (repeatable)")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(atRiskCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(achievementsCmd)
}
