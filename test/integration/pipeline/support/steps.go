package support

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/cardex/internal/export"
	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/ocr"
	"github.com/MeKo-Tech/cardex/internal/testutil"
)

// RegisterSteps registers every step definition.
func (tc *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	// Given
	sc.Step(`^the "([^"]*)" pass reads:$`, tc.thePassReads)
	sc.Step(`^the "([^"]*)" pass finds no text$`, tc.thePassFindsNoText)
	sc.Step(`^the "([^"]*)" pass fails with "([^"]*)"$`, tc.thePassFails)
	sc.Step(`^no AI model is configured$`, tc.noAIModel)
	sc.Step(`^the AI model replies '([^']*)'$`, tc.theAIReplies)
	sc.Step(`^the AI model does not answer$`, tc.theAIHangs)

	// When
	sc.Step(`^the card is processed with languages "([^"]*)"$`, tc.theCardIsProcessed)

	// Then
	sc.Step(`^processing succeeds$`, tc.processingSucceeds)
	sc.Step(`^the status is "([^"]*)"$`, tc.theStatusIs)
	sc.Step(`^the status is "([^"]*)" with reason "([^"]*)"$`, tc.theStatusWithReasonIs)
	sc.Step(`^the extracted text is "([^"]*)"$`, tc.theTextIs)
	sc.Step(`^the extracted text does not contain "([^"]*)"$`, tc.theTextDoesNotContain)
	sc.Step(`^the dominant language is "([^"]*)"$`, tc.theDominantLanguageIs)
	sc.Step(`^the field "([^"]*)" is "([^"]*)"$`, tc.theFieldIs)
	sc.Step(`^the field "([^"]*)" comes from "([^"]*)" with confidence ([\d.]+)$`, tc.theFieldComesFrom)
	sc.Step(`^every field is empty$`, tc.everyFieldIsEmpty)
	sc.Step(`^the AI model was called (\d+) times?$`, tc.theAIWasCalled)
	sc.Step(`^the overall confidence is ([\d.]+)$`, tc.theOverallConfidenceIs)
	sc.Step(`^the vCard contains "([^"]*)"$`, tc.theVCardContains)
}

func (tc *TestContext) thePassReads(lang string, table *godog.Table) error {
	var tokens []ocr.Token
	for i, row := range table.Rows {
		if i == 0 {
			continue // header: text | confidence
		}
		if len(row.Cells) != 2 {
			return fmt.Errorf("row %d: want text and confidence", i)
		}
		conf, err := strconv.ParseFloat(row.Cells[1].Value, 64)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		y := float64(i-1) * testutil.LineHeight * 2
		tokens = append(tokens, testutil.Line(y, conf, strings.Fields(row.Cells[0].Value)...)...)
	}
	tc.Engines[lang] = &testutil.Engine{Tokens: tokens}
	return nil
}

func (tc *TestContext) thePassFindsNoText(lang string) error {
	tc.Engines[lang] = &testutil.Engine{}
	return nil
}

func (tc *TestContext) thePassFails(lang, msg string) error {
	tc.Engines[lang] = &testutil.Engine{Err: errors.New(msg)}
	return nil
}

func (tc *TestContext) noAIModel() error {
	tc.AI = nil
	return nil
}

func (tc *TestContext) theAIReplies(text string) error {
	tc.AI = testutil.NewAI(testutil.AIReply{Text: text})
	return nil
}

func (tc *TestContext) theAIHangs() error {
	tc.AI = testutil.NewAI(testutil.AIReply{Hang: true})
	return nil
}

func (tc *TestContext) theCardIsProcessed(langs string) error {
	return tc.process(strings.Split(langs, ","))
}

func (tc *TestContext) processingSucceeds() error {
	if tc.LastError != nil {
		return fmt.Errorf("processing failed: %w", tc.LastError)
	}
	if tc.Result == nil {
		return errors.New("no result")
	}
	return nil
}

func (tc *TestContext) theStatusIs(status string) error {
	if err := tc.processingSucceeds(); err != nil {
		return err
	}
	if got := string(tc.Result.Status); got != status {
		return fmt.Errorf("status is %q (reason %q), want %q", got, tc.Result.Reason, status)
	}
	return nil
}

func (tc *TestContext) theStatusWithReasonIs(status, reason string) error {
	if err := tc.theStatusIs(status); err != nil {
		return err
	}
	if tc.Result.Reason != reason {
		return fmt.Errorf("reason is %q, want %q", tc.Result.Reason, reason)
	}
	return nil
}

func (tc *TestContext) theTextIs(text string) error {
	if err := tc.processingSucceeds(); err != nil {
		return err
	}
	want := strings.ReplaceAll(text, `\n`, "\n")
	if tc.Result.Text != want {
		return fmt.Errorf("extracted text is %q, want %q", tc.Result.Text, want)
	}
	return nil
}

func (tc *TestContext) theTextDoesNotContain(s string) error {
	if err := tc.processingSucceeds(); err != nil {
		return err
	}
	if strings.Contains(tc.Result.Text, s) {
		return fmt.Errorf("extracted text %q contains %q", tc.Result.Text, s)
	}
	return nil
}

func (tc *TestContext) theDominantLanguageIs(lang string) error {
	if err := tc.processingSucceeds(); err != nil {
		return err
	}
	if tc.Result.DominantLanguage != lang {
		return fmt.Errorf("dominant language is %q, want %q", tc.Result.DominantLanguage, lang)
	}
	return nil
}

func (tc *TestContext) field(name string) (*extract.Field, error) {
	if err := tc.processingSucceeds(); err != nil {
		return nil, err
	}
	f := tc.Result.Record.Get(name)
	if f == nil {
		return nil, fmt.Errorf("field %q is empty", name)
	}
	return f, nil
}

func (tc *TestContext) theFieldIs(name, value string) error {
	f, err := tc.field(name)
	if err != nil {
		return err
	}
	if f.Value != value {
		return fmt.Errorf("field %q is %q, want %q", name, f.Value, value)
	}
	return nil
}

func (tc *TestContext) theFieldComesFrom(name, source string, conf float64) error {
	f, err := tc.field(name)
	if err != nil {
		return err
	}
	if string(f.Source) != source {
		return fmt.Errorf("field %q comes from %q, want %q", name, f.Source, source)
	}
	if math.Abs(f.Confidence-conf) > 1e-9 {
		return fmt.Errorf("field %q has confidence %v, want %v", name, f.Confidence, conf)
	}
	return nil
}

func (tc *TestContext) everyFieldIsEmpty() error {
	if err := tc.processingSucceeds(); err != nil {
		return err
	}
	for _, n := range extract.FieldNames {
		if v := tc.Result.Record.Value(n); v != "" {
			return fmt.Errorf("field %q is %q, want empty", n, v)
		}
	}
	return nil
}

func (tc *TestContext) theAIWasCalled(n int) error {
	calls := 0
	if tc.AI != nil {
		calls = tc.AI.Calls()
	}
	if calls != n {
		return fmt.Errorf("AI model was called %d times, want %d", calls, n)
	}
	return nil
}

func (tc *TestContext) theOverallConfidenceIs(conf float64) error {
	if err := tc.processingSucceeds(); err != nil {
		return err
	}
	if math.Abs(tc.Result.OverallConfidence-conf) > 1e-9 {
		return fmt.Errorf("overall confidence is %v, want %v", tc.Result.OverallConfidence, conf)
	}
	return nil
}

func (tc *TestContext) theVCardContains(line string) error {
	if err := tc.processingSucceeds(); err != nil {
		return err
	}
	card := export.VCard(tc.Result.Record)
	if !strings.Contains(card, line+"\r\n") {
		return fmt.Errorf("vCard does not contain %q:\n%s", line, card)
	}
	return nil
}
