package flow

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/iskan70/my-logistic-bot/internal/customs"
	"github.com/iskan70/my-logistic-bot/internal/models"
)

func TestSubmitWithoutFlowIsNotInFlow(t *testing.T) {
	c, _ := newTestCollector(t, nil)
	_, err := c.Submit(context.Background(), "nobody", TextEvent("hello"))
	if !errors.Is(err, ErrNotInFlow) {
		t.Fatalf("expected ErrNotInFlow, got %v", err)
	}
}

func TestOrderFlowCollectsExactlyDeclaredFields(t *testing.T) {
	c, store := newTestCollector(t, nil)
	ctx := context.Background()
	if _, _, err := c.Begin(ctx, "alice", models.FlowOrderIntake); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	out := submitAll(t, c, "alice",
		TextEvent("Ivan Petrov"),
		TextEvent("1"), // first country option, +7 (KZ)
		TextEvent("701 123-45-67"),
		TextEvent("Laptops"),
		TextEvent("12000"),
		TextEvent("Guangzhou"),
		TextEvent("Almaty"),
		TextEvent("350"),
		TextEvent("2.5"),
	)
	done, ok := out.(OutcomeCompleted)
	if !ok {
		t.Fatalf("expected OutcomeCompleted, got %T", out)
	}

	def, _ := c.Definition(models.FlowOrderIntake)
	if !reflect.DeepEqual(done.Session.Order, def.Fields) {
		t.Errorf("fields collected in order %v, want %v", done.Session.Order, def.Fields)
	}
	if len(done.Session.Fields) != len(def.Fields) {
		t.Errorf("expected exactly %d fields, got %d", len(def.Fields), len(done.Session.Fields))
	}

	want := map[models.FieldName]string{
		models.FieldFullName:     "Ivan Petrov",
		models.FieldPhoneCountry: "+7/KZ",
		models.FieldPhone:        "+77011234567",
		models.FieldCargo:        "Laptops",
		models.FieldCargoValue:   "12000",
		models.FieldOrigin:       "Guangzhou",
		models.FieldDestination:  "Almaty",
		models.FieldWeight:       "350",
		models.FieldVolume:       "2.5",
	}
	if !reflect.DeepEqual(done.Session.Fields, want) {
		t.Errorf("unexpected fields:\n got %v\nwant %v", done.Session.Fields, want)
	}
	if got := mustGet(t, store, "alice"); got.Step != models.StateDone {
		t.Errorf("expected stored step done, got %s", got.Step)
	}
}

func TestPhoneAcceptedIffDigitCountMatches(t *testing.T) {
	cat := catalog.Default()
	inputs := []string{"123", "12345678", "123456789", "1234567890", "12345678901", "(701) 123-45-67", "+7 701 123 45 67 8"}

	for _, cc := range cat.CountryCodes {
		if cc.Digits == 0 {
			continue
		}
		for _, in := range inputs {
			t.Run(cc.Value+"/"+in, func(t *testing.T) {
				c, store := newTestCollector(t, nil)
				ctx := context.Background()
				c.Begin(ctx, "p", models.FlowOrderIntake)
				submitAll(t, c, "p", TextEvent("Name"), ChoiceEvent(cc.Value))
				before := mustGet(t, store, "p")

				out, err := c.Submit(ctx, "p", TextEvent(in))
				if err != nil {
					t.Fatalf("Submit failed: %v", err)
				}
				wantAccept := len(StripDigits(in)) == cc.Digits

				switch o := out.(type) {
				case OutcomeAdvanced:
					if !wantAccept {
						t.Fatalf("accepted %q for %s (%d digits expected)", in, cc.Value, cc.Digits)
					}
					phone, _ := o.Session.Field(models.FieldPhone)
					if phone != cc.Code+StripDigits(in) {
						t.Errorf("stored phone %q", phone)
					}
				case OutcomeRejected:
					if wantAccept {
						t.Fatalf("rejected %q for %s: %s", in, cc.Value, o.Message)
					}
					if !strings.Contains(o.Message, strconv.Itoa(cc.Digits)) {
						t.Errorf("rejection %q does not restate expected count %d", o.Message, cc.Digits)
					}
					after := mustGet(t, store, "p")
					if !reflect.DeepEqual(before.Fields, after.Fields) || before.Step != after.Step {
						t.Errorf("rejection mutated the session: before %+v after %+v", before, after)
					}
				default:
					t.Fatalf("unexpected outcome %T", out)
				}
			})
		}
	}
}

func TestPhoneScenarioShortNumberRejected(t *testing.T) {
	c, store := newTestCollector(t, nil)
	ctx := context.Background()
	c.Begin(ctx, "p", models.FlowOrderIntake)
	submitAll(t, c, "p", TextEvent("Name"), ChoiceEvent("+7/RU"))

	out, err := c.Submit(ctx, "p", TextEvent("123"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	r, ok := out.(OutcomeRejected)
	if !ok {
		t.Fatalf("expected OutcomeRejected, got %T", out)
	}
	if !strings.Contains(r.Message, "10") || !strings.Contains(r.Message, "3") {
		t.Errorf("message should restate 10 expected digits and the 3 given: %q", r.Message)
	}
	s := mustGet(t, store, "p")
	if s.Has(models.FieldPhone) {
		t.Error("phone must not be stored after rejection")
	}
	if s.Step != models.StateOrderPhone {
		t.Errorf("step moved to %s", s.Step)
	}
}

func TestInternationalPhone(t *testing.T) {
	tests := []struct {
		input  string
		accept bool
		stored string
	}{
		{"+49 151 2345 6789", true, "+4915123456789"},
		{"+1234567890", true, "+1234567890"},
		{"4915123456789", false, ""},
		{"+123456", false, ""},
		{"+1234567890123456", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c, _ := newTestCollector(t, nil)
			ctx := context.Background()
			c.Begin(ctx, "p", models.FlowOrderIntake)
			submitAll(t, c, "p", TextEvent("Name"), ChoiceEvent("other"))

			out, err := c.Submit(ctx, "p", TextEvent(tt.input))
			if err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			adv, accepted := out.(OutcomeAdvanced)
			if accepted != tt.accept {
				t.Fatalf("accept = %v, want %v (%T)", accepted, tt.accept, out)
			}
			if accepted {
				if phone, _ := adv.Session.Field(models.FieldPhone); phone != tt.stored {
					t.Errorf("stored %q, want %q", phone, tt.stored)
				}
			}
		})
	}
}

func TestPhonePromptNamesChosenCode(t *testing.T) {
	c, _ := newTestCollector(t, nil)
	c.Begin(context.Background(), "p", models.FlowOrderIntake)
	out := submitAll(t, c, "p", TextEvent("Name"), ChoiceEvent("+86"))
	adv := out.(OutcomeAdvanced)
	if !strings.Contains(adv.Prompt.Text, "+86") || !strings.Contains(adv.Prompt.Text, "11") {
		t.Errorf("prompt %q should mention +86 and 11 digits", adv.Prompt.Text)
	}
}

// runCustoms drives the customs flow to completion and returns the final session.
func runCustoms(t *testing.T, id string, duty []Event, price, region string) *models.Session {
	t.Helper()
	c, _ := newTestCollector(t, nil)
	c.Begin(context.Background(), id, models.FlowCustomsCalc)
	events := append([]Event{TextEvent("Laptops")}, duty...)
	events = append(events, TextEvent(price), ChoiceEvent(region))
	out := submitAll(t, c, id, events...)
	done, ok := out.(OutcomeCompleted)
	if !ok {
		t.Fatalf("expected completion, got %T", out)
	}
	return done.Session
}

func estimate(t *testing.T, s *models.Session) customs.Result {
	t.Helper()
	get := func(f models.FieldName) string {
		v, ok := s.Field(f)
		if !ok {
			t.Fatalf("missing %s", f)
		}
		return v
	}
	p, _ := customs.ParseAmount(get(models.FieldPrice))
	d, _ := customs.ParseAmount(get(models.FieldDutyPercent))
	v, _ := customs.ParseAmount(get(models.FieldVATPercent))
	return customs.Calculate(p, d, v)
}

func TestBranchMergeIsPathIndependent(t *testing.T) {
	cat := catalog.Default()
	for _, preset := range cat.DutyPresets {
		for _, manual := range []string{preset.Percent, preset.Percent + ".0", preset.Percent + ",00"} {
			t.Run(preset.Percent+"/"+manual, func(t *testing.T) {
				viaPreset := runCustoms(t, "a", []Event{ChoiceEvent(preset.Percent)}, "1234,56", "kz")
				viaManual := runCustoms(t, "b", []Event{ChoiceEvent(catalog.ManualDutyValue), TextEvent(manual)}, "1234,56", "kz")

				dp, _ := viaPreset.Field(models.FieldDutyPercent)
				dm, _ := viaManual.Field(models.FieldDutyPercent)
				if dp != dm {
					t.Fatalf("duty_percent differs: preset %q manual %q", dp, dm)
				}
				if !reflect.DeepEqual(viaPreset.Fields, viaManual.Fields) {
					t.Errorf("fields differ:\npreset %v\nmanual %v", viaPreset.Fields, viaManual.Fields)
				}
				rp, rm := estimate(t, viaPreset), estimate(t, viaManual)
				if !rp.Total.Equal(rm.Total) || !rp.DutyAmount.Equal(rm.DutyAmount) || !rp.VATAmount.Equal(rm.VATAmount) {
					t.Errorf("estimates differ: %+v vs %+v", rp, rm)
				}
			})
		}
	}
}

func TestManualMarkerStoresNothing(t *testing.T) {
	c, store := newTestCollector(t, nil)
	c.Begin(context.Background(), "m", models.FlowCustomsCalc)
	out := submitAll(t, c, "m", TextEvent("Tyres"), TextEvent("✏️ Ввести свой %"))

	adv, ok := out.(OutcomeAdvanced)
	if !ok {
		t.Fatalf("expected advance, got %T", out)
	}
	if adv.Session.Step != models.StateCustomsManualDuty {
		t.Errorf("expected manual duty step, got %s", adv.Session.Step)
	}
	if mustGet(t, store, "m").Has(models.FieldDutyPercent) {
		t.Error("manual marker must not store duty_percent")
	}

	r, err := c.Submit(context.Background(), "m", TextEvent("-5"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, ok := r.(OutcomeRejected); !ok {
		t.Errorf("negative duty should be rejected, got %T", r)
	}
}

func TestAdvisoryFailureStillShowsDutyChoices(t *testing.T) {
	adv := &mockAdvisor{err: errBoom}
	c, _ := newTestCollector(t, adv)
	cat := catalog.Default()
	c.Begin(context.Background(), "x", models.FlowCustomsCalc)

	out := submitAll(t, c, "x", TextEvent("Sneakers"))
	a, ok := out.(OutcomeAdvanced)
	if !ok {
		t.Fatalf("expected advance, got %T", out)
	}
	if adv.calls != 1 {
		t.Errorf("advisor called %d times", adv.calls)
	}
	if !strings.Contains(a.Prompt.Text, cat.Texts.AdvisoryFallback) {
		t.Errorf("prompt %q lacks fallback text", a.Prompt.Text)
	}
	if !reflect.DeepEqual(a.Prompt.Choices, cat.DutyChoices()) {
		t.Errorf("duty choices not shown: %v", a.Prompt.Choices)
	}

	out = submitAll(t, c, "x", ChoiceEvent("12"))
	if a := out.(OutcomeAdvanced); a.Session.Step != models.StateCustomsPrice {
		t.Errorf("flow did not continue, step %s", a.Session.Step)
	}
}

func TestAdvisorySuccessIsShown(t *testing.T) {
	c, _ := newTestCollector(t, &mockAdvisor{reply: "ТН ВЭД 8471"})
	c.Begin(context.Background(), "x", models.FlowCustomsCalc)
	out := submitAll(t, c, "x", TextEvent("Laptops"))
	if a := out.(OutcomeAdvanced); !strings.Contains(a.Prompt.Text, "ТН ВЭД 8471 Laptops") {
		t.Errorf("advice missing from %q", a.Prompt.Text)
	}
}

func TestChoiceResolution(t *testing.T) {
	cat := catalog.Default()
	tests := []struct {
		name     string
		input    string
		want     models.StateType
		wantDuty string
	}{
		{"by value", "12", models.StateCustomsPrice, "12"},
		{"by label", "👕 одежда (12%)", models.StateCustomsPrice, "12"},
		{"manual by label", cat.ManualDutyLabel, models.StateCustomsManualDuty, ""},
		{"typed rate below option count", "3", models.StateCustomsPrice, "3"},
		{"typed rate matching manual position", strconv.Itoa(len(cat.DutyChoices())), models.StateCustomsPrice, strconv.Itoa(len(cat.DutyChoices()))},
		{"typed rate outside presets", "7", models.StateCustomsPrice, "7"},
		{"typed rate with comma", "7,50", models.StateCustomsPrice, "7.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCollector(t, nil)
			c.Begin(context.Background(), "r", models.FlowCustomsCalc)
			submitAll(t, c, "r", TextEvent("Cargo"))
			out := submitAll(t, c, "r", TextEvent(tt.input))
			adv := out.(OutcomeAdvanced)
			if got := adv.Session.Step; got != tt.want {
				t.Errorf("step %s, want %s", got, tt.want)
			}
			duty, _ := adv.Session.Field(models.FieldDutyPercent)
			if duty != tt.wantDuty {
				t.Errorf("duty_percent %q, want %q", duty, tt.wantDuty)
			}
			if tt.wantDuty != "" && !strings.Contains(adv.Prompt.Text, tt.wantDuty+"%") {
				t.Errorf("price prompt %q does not confirm %s%%", adv.Prompt.Text, tt.wantDuty)
			}
		})
	}

	t.Run("negative typed rate", func(t *testing.T) {
		c, store := newTestCollector(t, nil)
		c.Begin(context.Background(), "r", models.FlowCustomsCalc)
		submitAll(t, c, "r", TextEvent("Cargo"))
		out, err := c.Submit(context.Background(), "r", TextEvent("-3"))
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if _, ok := out.(OutcomeRejected); !ok {
			t.Fatalf("expected rejection, got %T", out)
		}
		if mustGet(t, store, "r").Has(models.FieldDutyPercent) {
			t.Error("rejected rate must not be stored")
		}
	})

	t.Run("unresolved", func(t *testing.T) {
		c, store := newTestCollector(t, nil)
		c.Begin(context.Background(), "r", models.FlowCustomsCalc)
		submitAll(t, c, "r", TextEvent("Cargo"))
		out, err := c.Submit(context.Background(), "r", TextEvent("seven percent"))
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		r, ok := out.(OutcomeRejected)
		if !ok {
			t.Fatalf("expected rejection, got %T", out)
		}
		if r.Message != cat.Texts.ChoiceRejected || len(r.Choices) != len(cat.DutyChoices()) {
			t.Errorf("unexpected rejection %+v", r)
		}
		if mustGet(t, store, "r").Step != models.StateCustomsDutyChoice {
			t.Error("step moved after rejection")
		}
	})
}

func TestUnknownChoiceValueRejected(t *testing.T) {
	c, _ := newTestCollector(t, nil)
	c.Begin(context.Background(), "r", models.FlowCustomsCalc)
	submitAll(t, c, "r", TextEvent("Cargo"), ChoiceEvent("5"), TextEvent("100"))
	out, err := c.Submit(context.Background(), "r", ChoiceEvent("mars"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, ok := out.(OutcomeRejected); !ok {
		t.Errorf("expected rejection for unknown region, got %T", out)
	}
}

func TestEmptyTextRejected(t *testing.T) {
	c, store := newTestCollector(t, nil)
	c.Begin(context.Background(), "e", models.FlowOrderIntake)
	out, err := c.Submit(context.Background(), "e", TextEvent("   "))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if r, ok := out.(OutcomeRejected); !ok || r.Message != catalog.Default().Texts.EmptyText {
		t.Errorf("expected empty-text rejection, got %+v", out)
	}
	if len(mustGet(t, store, "e").Fields) != 0 {
		t.Error("rejection stored a field")
	}
}

func TestMediaAtTextStepRejected(t *testing.T) {
	c, _ := newTestCollector(t, nil)
	c.Begin(context.Background(), "m", models.FlowOrderIntake)
	out, err := c.Submit(context.Background(), "m", MediaEvent(models.Attachment{URL: "https://x/y.jpg", MIMEType: "image/jpeg"}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	r, ok := out.(OutcomeRejected)
	if !ok {
		t.Fatalf("expected rejection, got %T", out)
	}
	if r.Message != catalog.Default().Texts.OrderName {
		t.Errorf("expected the step prompt as hint, got %q", r.Message)
	}
}

func TestDocFlowCollectsImages(t *testing.T) {
	c, _ := newTestCollector(t, nil)
	ctx := context.Background()
	c.Begin(ctx, "d", models.FlowDocAnalysis)

	out, _ := c.Submit(ctx, "d", ChoiceEvent(catalog.DocAnalyzeValue))
	if r, ok := out.(OutcomeRejected); !ok || r.Message != catalog.Default().Texts.DocEmptyBatch {
		t.Fatalf("expected empty batch rejection, got %+v", out)
	}

	out, _ = c.Submit(ctx, "d", MediaEvent(
		models.Attachment{URL: "data:image/jpeg;base64,AAAA", MIMEType: "image/jpeg"},
		models.Attachment{URL: "https://x/doc.pdf", MIMEType: "application/pdf"},
	))
	adv, ok := out.(OutcomeAdvanced)
	if !ok || len(adv.Session.Attachments) != 1 || adv.Prompt.Text != "" {
		t.Fatalf("expected one image collected silently, got %+v", out)
	}

	out = submitAll(t, c, "d", TextEvent("1"))
	done, ok := out.(OutcomeCompleted)
	if !ok || len(done.Session.Attachments) != 1 {
		t.Fatalf("expected completion with batch, got %+v", out)
	}
}

func TestInvariantViolationDetected(t *testing.T) {
	c, store := newTestCollector(t, nil)
	ctx := context.Background()
	c.Begin(ctx, "v", models.FlowCustomsCalc)
	submitAll(t, c, "v", TextEvent("Cargo"))
	// Skip the duty step entirely.
	if _, err := store.SetStep(ctx, "v", models.StateCustomsPrice); err != nil {
		t.Fatal(err)
	}
	_, err := c.Submit(ctx, "v", TextEvent("100"))
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
}

func TestValidationErrorIsSentinel(t *testing.T) {
	err := reject("nope")
	if !errors.Is(err, ErrValidationRejected) {
		t.Error("ValidationError must match ErrValidationRejected")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Message != "nope" {
		t.Errorf("unexpected %v", err)
	}
}
