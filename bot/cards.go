package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/studyquizbot/quiz"
)

const welcomeText = `Welcome to StudyQuizBot!

Send me your study material and I will turn it into a multiple choice quiz.

Commands:
/start - Show this message
/count N - Set the number of questions (1-20, default 5)
/generate - Generate the quiz from the uploaded file
/status - Show the current quiz state
/reset - Discard the quiz and start over

Supported files: .txt, .pdf, .doc, .docx`

const loadingText = "Generating your quiz..."

func formatNotification(n quiz.Notification) string {
	icon := "ℹ️"
	switch n.Level {
	case quiz.LevelSuccess:
		icon = "✅"
	case quiz.LevelError:
		icon = "❌"
	}
	if n.Message == "" {
		return icon + " " + n.Title
	}
	return fmt.Sprintf("%s %s\n%s", icon, n.Title, n.Message)
}

// card renders the session state as a message and its inline keyboard
func card(s quiz.Snapshot) (string, *tgbotapi.InlineKeyboardMarkup) {
	switch s.Phase {
	case quiz.PhaseLoading:
		return loadingText, nil
	case quiz.PhaseError:
		return errorCard(s)
	case quiz.PhaseAnswering:
		return questionCard(s)
	case quiz.PhaseResults:
		return resultsCard(s)
	default:
		return idleCard(s)
	}
}

func idleCard(s quiz.Snapshot) (string, *tgbotapi.InlineKeyboardMarkup) {
	if !s.HasFile {
		return "📄 Drop your study material here (.txt, .pdf, .doc, .docx) to get started.", nil
	}
	text := fmt.Sprintf("📄 %s\nNumber of questions: %d (change with /count N)", s.FileName, s.QuestionCount)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Generate Quiz", callbackGenerate)),
	)
	return text, &kb
}

func errorCard(s quiz.Snapshot) (string, *tgbotapi.InlineKeyboardMarkup) {
	text := fmt.Sprintf("⚠️ Error Generating Quiz\n\n%s\n\nPlease try again or contact support if the issue persists.", s.LastError)

	var row []tgbotapi.InlineKeyboardButton
	if s.HasFile {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Try Again", callbackGenerate))
	}
	row = append(row, tgbotapi.NewInlineKeyboardButtonData("Start Over", callbackReset))
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return text, &kb
}

func questionCard(s quiz.Snapshot) (string, *tgbotapi.InlineKeyboardMarkup) {
	q, _ := s.Current()
	selected := s.Selected()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question %d of %d\n\n%s", s.CurrentIndex+1, s.Total(), q.Question)
	if s.AnswerRevealed {
		if selected == q.CorrectAnswer {
			sb.WriteString("\n\n✅ Correct!")
		} else {
			fmt.Fprintf(&sb, "\n\n❌ Incorrect. The correct answer was: %s", q.CorrectAnswer)
		}
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for i, option := range q.Options {
		label := optionLabel(option, selected, q.CorrectAnswer, s.AnswerRevealed)
		data := fmt.Sprintf("%s%d:%d", callbackAnswer, s.CurrentIndex, i)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}

	switch {
	case s.AnswerRevealed && s.IsLast():
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Show Final Results", callbackNext)))
	case s.AnswerRevealed:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Next Question", callbackNext)))
	case selected != "":
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Submit Answer", callbackSubmit)))
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return sb.String(), &kb
}

func optionLabel(option, selected, correct string, revealed bool) string {
	switch {
	case revealed && option == correct:
		return "✅ " + option
	case revealed && option == selected:
		return "❌ " + option
	case !revealed && option == selected:
		return "🔘 " + option
	default:
		return option
	}
}

func resultsCard(s quiz.Snapshot) (string, *tgbotapi.InlineKeyboardMarkup) {
	verdict := "Keep practicing!"
	if s.Passed() {
		verdict = "Great job!"
	}
	text := fmt.Sprintf("🏁 Quiz Complete!\n\nYour final score: %d out of %d\n\n%s", s.Score, s.Total(), verdict)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Start New Quiz", callbackReset)),
	)
	return text, &kb
}
