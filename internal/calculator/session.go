package calculator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
)

// State is the position of the two-operand entry machine. The order matters:
// everything before Operand2 has nothing to compute yet.
type State int

const (
	Start State = iota
	Operand1
	Operator
	Operand2
	Complete
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case Operand1:
		return "operand1"
	case Operator:
		return "operator"
	case Operand2:
		return "operand2"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Keypad is the button layout a front-end shows. It has no effect on
// evaluation.
type Keypad string

const (
	KeypadBasic      Keypad = "basic"
	KeypadScientific Keypad = "scientific"
)

// MaxEntryDigits caps the digits of an operand typed in, sign and decimal
// point excluded.
const MaxEntryDigits = 8

// PowerService computes powers remotely.
type PowerService interface {
	Power(ctx context.Context, base, exponent float64) (float64, error)
}

// Hooks are notified after each handled event. Any of them may be nil.
type Hooks struct {
	OnChange  func(View)
	OnHistory func([]HistoryEntry)
	OnBusy    func(bool)
}

// View is what a front-end renders.
type View struct {
	Display        string `json:"display"`
	Calculation    string `json:"calculation"`
	State          string `json:"state"`
	ExpressionMode bool   `json:"expression_mode"`
	Angle          string `json:"angle"`
	Keypad         Keypad `json:"keypad"`
	Error          string `json:"error,omitempty"`
	Busy           bool   `json:"busy"`
}

// Option configures a Session.
type Option func(*Session)

func WithPowerService(p PowerService) Option {
	return func(s *Session) { s.power = p }
}

func WithHooks(h Hooks) Option {
	return func(s *Session) { s.hooks = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithHistory seeds the ledger, newest entry first.
func WithHistory(entries []HistoryEntry) Option {
	return func(s *Session) { s.history.Load(entries) }
}

// Session is one calculator: entry state, pending operation, expression
// buffer and history. It is not safe for concurrent use; hosts serialize
// events per session.
type Session struct {
	state    State
	entry    string
	display  string
	operand1 string
	operand2 string
	operator string

	expression    string
	useExpression bool

	sci     Scientific
	keypad  Keypad
	history Ledger
	errMsg  string
	busy    bool

	power  PowerService
	hooks  Hooks
	now    func() time.Time
	logger *zap.Logger
}

func NewSession(opts ...Option) *Session {
	s := &Session{
		keypad: KeypadBasic,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	s.reset()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) reset() {
	s.state = Start
	s.setEntry("0")
	s.operand1 = "0"
	s.operand2 = "0"
	s.operator = ""
	s.expression = ""
	s.useExpression = false
}

// State returns the current entry state.
func (s *Session) State() State { return s.state }

// Busy reports whether a remote request is outstanding.
func (s *Session) Busy() bool { return s.busy }

// Value returns the current entry as a number.
func (s *Session) Value() float64 {
	v, err := ToNumber(s.entry)
	if err != nil {
		return 0
	}
	return v
}

// Entry returns the current entry text.
func (s *Session) Entry() string { return s.entry }

// Expression returns the expression buffer.
func (s *Session) Expression() string { return s.expression }

// History returns the ledger, newest first.
func (s *Session) History() []HistoryEntry { return s.history.Entries() }

// View snapshots the session for rendering.
func (s *Session) View() View {
	v := View{
		Display:        s.display,
		State:          s.state.String(),
		ExpressionMode: s.useExpression,
		Angle:          s.sci.Angle.String(),
		Keypad:         s.keypad,
		Error:          s.errMsg,
		Busy:           s.busy,
	}

	switch {
	case s.errMsg != "":
		v.Display = s.errMsg
	case s.useExpression && s.expression != "":
		v.Display = s.expression
	case !s.useExpression && s.operator != "" && s.state == Operator:
		v.Calculation = s.operand1 + " " + s.operator
	case !s.useExpression && s.operator != "" && s.state == Operand2:
		v.Calculation = s.operand1 + " " + s.operator + " " + s.entry
	}
	return v
}

func (s *Session) setEntry(text string) {
	s.entry = text
	s.display = text
}

func (s *Session) setValue(v float64) {
	s.entry = NumberString(v)
	s.display = FormatNumber(v)
}

func (s *Session) begin() error {
	if s.busy {
		return ErrBusy
	}
	s.errMsg = ""
	return nil
}

func (s *Session) changed() {
	if s.hooks.OnChange != nil {
		s.hooks.OnChange(s.View())
	}
}

func (s *Session) setBusy(busy bool) {
	s.busy = busy
	if s.hooks.OnBusy != nil {
		s.hooks.OnBusy(busy)
	}
}

// fail shows err and resets the entry. With keepPending the stored operand
// and operator survive so the user can enter a new second operand.
func (s *Session) fail(err error, keepPending bool) {
	s.errMsg = DisplayMessage(err)
	s.setEntry("0")

	switch {
	case s.useExpression:
		s.expression = ""
	case keepPending && s.operator != "":
		s.state = Operator
	case s.state == Operator || s.state == Operand2:
		s.state = Operator
	default:
		s.state = Start
	}

	s.logger.Debug("calculator error",
		zap.String("display", s.errMsg),
		zap.String("state", s.state.String()),
		zap.Error(err),
	)
}

func (s *Session) record(operand1, operator, operand2 string, result float64) {
	s.history.Record(HistoryEntry{
		Operand1:  Operand(operand1),
		Operator:  operator,
		Operand2:  Operand(operand2),
		Result:    result,
		Timestamp: s.now().UnixMilli(),
	})

	s.logger.Debug("calculation recorded",
		zap.String("operand1", operand1),
		zap.String("operator", operator),
		zap.String("operand2", operand2),
		zap.Float64("result", result),
	)

	s.historyChanged()
}

func (s *Session) historyChanged() {
	if s.hooks.OnHistory != nil {
		s.hooks.OnHistory(s.history.Entries())
	}
}

// Digit handles a number key.
func (s *Session) Digit(d rune) error {
	if d < '0' || d > '9' {
		return wrapError(InvalidOperand, "digit", GenericMessage, fmt.Errorf("not a digit: %q", d))
	}
	if err := s.begin(); err != nil {
		return err
	}
	defer s.changed()

	if s.useExpression {
		s.expression += string(d)
		return nil
	}

	switch s.state {
	case Start, Complete:
		s.setEntry(string(d))
		if d == '0' {
			s.state = Start
		} else {
			s.state = Operand1
		}
	case Operator:
		s.setEntry(string(d))
		if d != '0' {
			s.state = Operand2
		}
	default:
		if entryDigits(s.entry) < MaxEntryDigits {
			s.setEntry(s.entry + string(d))
		}
	}
	return nil
}

func entryDigits(entry string) int {
	return len(strings.NewReplacer("-", "", ".", "").Replace(entry))
}

// Decimal handles the decimal point key.
func (s *Session) Decimal() error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.changed()

	if s.useExpression {
		if !strings.HasSuffix(s.expression, ".") {
			s.expression += "."
		}
		return nil
	}

	switch s.state {
	case Start, Complete:
		s.setEntry("0.")
		s.state = Operand1
	case Operator:
		s.setEntry("0.")
		s.state = Operand2
	default:
		if !strings.Contains(s.entry, ".") {
			s.setEntry(s.entry + ".")
		}
	}
	return nil
}

// Operator stores op as the pending operation with the current entry as its
// first operand. Pressing another operator replaces it; nothing is chained.
func (s *Session) Operator(op string) error {
	if !IsBinaryOperator(op) {
		return wrapError(InvalidOperand, "operator", GenericMessage, fmt.Errorf("unknown operator %q", op))
	}
	if err := s.begin(); err != nil {
		return err
	}
	defer s.changed()

	if s.useExpression {
		s.expression += op
		return nil
	}

	s.operand1 = s.entry
	s.operator = op
	s.state = Operator
	s.logger.Debug("operation set", zap.String("operator", op))
	return nil
}

// Parenthesis switches to expression mode and appends p to the expression.
func (s *Session) Parenthesis(p rune) error {
	if p != '(' && p != ')' {
		return wrapError(InvalidOperand, "parenthesis", GenericMessage, fmt.Errorf("not a parenthesis: %q", p))
	}
	if err := s.begin(); err != nil {
		return err
	}
	defer s.changed()

	s.useExpression = true
	if s.expression == "" || s.expression == "0" {
		s.expression = string(p)
	} else {
		s.expression += string(p)
	}
	return nil
}

// Equals completes the pending operation or evaluates the expression. A
// second Equals repeats the last operation against the shown result.
func (s *Session) Equals(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.changed()

	if s.useExpression {
		return s.evaluateExpression()
	}

	switch s.state {
	case Start, Operand1, Operator:
		s.state = Complete
		return nil
	case Operand2:
		s.operand2 = s.entry
		s.state = Complete
	case Complete:
		if s.operator == "" {
			return nil
		}
		s.operand1 = s.entry
	}

	return s.calculate(ctx)
}

func (s *Session) evaluateExpression() error {
	expr := s.expression
	result, err := Evaluate(expr)
	if err != nil {
		s.fail(err, false)
		return err
	}

	s.setValue(result)
	s.expression = ""
	s.useExpression = false
	s.state = Complete
	s.record(expr, "=", "", result)
	return nil
}

func (s *Session) calculate(ctx context.Context) error {
	var (
		result float64
		err    error
	)

	if s.operator == OpPower && s.power != nil {
		result, err = s.remotePower(ctx)
	} else {
		result, err = Calculate(s.operand1, s.operand2, s.operator)
	}
	if err != nil {
		s.fail(err, true)
		return err
	}

	s.setValue(result)
	s.record(s.operand1, s.operator, s.operand2, result)
	return nil
}

func (s *Session) remotePower(ctx context.Context) (float64, error) {
	base, err := ToNumber(s.operand1)
	if err != nil {
		return 0, err
	}
	exponent, err := ToNumber(s.operand2)
	if err != nil {
		return 0, err
	}

	s.setBusy(true)
	defer s.setBusy(false)

	result, err := s.power.Power(ctx, base, exponent)
	if err != nil {
		return 0, wrapError(ArithmeticOverflow, OpPower, GenericMessage, err)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, newError(ArithmeticOverflow, OpPower, GenericMessage)
	}
	return result, nil
}

// Function applies a scientific function to the current entry and records
// it as a one-operand calculation. The pending operation is left alone.
func (s *Session) Function(name string) error {
	if !IsFunction(name) {
		return wrapError(InvalidOperand, "function", GenericMessage, fmt.Errorf("unknown function %q", name))
	}
	if err := s.begin(); err != nil {
		return err
	}
	defer s.changed()

	if s.useExpression {
		return nil
	}

	x, err := ToNumber(s.entry)
	if err != nil {
		s.fail(err, false)
		return err
	}

	result, err := s.sci.Apply(name, x)
	if err != nil {
		s.fail(err, false)
		return err
	}

	s.setValue(result)
	s.record(NumberString(x), name, "", result)
	return nil
}

// Clear resets the entry machine. History and modes are kept.
func (s *Session) Clear() error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.changed()

	s.reset()
	return nil
}

// ClearEntry zeroes the current entry only.
func (s *Session) ClearEntry() error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.changed()

	s.setEntry("0")
	if s.useExpression {
		s.expression = ""
		return nil
	}

	if s.state == Operator || s.state == Operand2 {
		s.state = Operator
	} else {
		s.state = Start
	}
	return nil
}

// Sign negates a non-zero entry in place.
func (s *Session) Sign() error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.changed()

	if s.useExpression {
		return nil
	}

	v, err := ToNumber(s.entry)
	if err != nil {
		return err
	}
	if v != 0 {
		s.setValue(-v)
	}
	return nil
}

// ToggleAngleMode flips between degrees and radians for sin, cos and tan.
func (s *Session) ToggleAngleMode() error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.changed()

	if s.sci.Angle == Degrees {
		s.sci.Angle = Radians
	} else {
		s.sci.Angle = Degrees
	}
	return nil
}

// AngleMode returns the trigonometric angle mode.
func (s *Session) AngleMode() AngleMode { return s.sci.Angle }

// SetKeypad records which button layout the front-end shows.
func (s *Session) SetKeypad(k Keypad) error {
	if k != KeypadBasic && k != KeypadScientific {
		return wrapError(InvalidOperand, "keypad", GenericMessage, fmt.Errorf("unknown keypad %q", k))
	}
	if err := s.begin(); err != nil {
		return err
	}
	defer s.changed()

	s.keypad = k
	return nil
}

// Restore makes the result of history entry index the current value.
func (s *Session) Restore(index int) error {
	if s.busy {
		return ErrBusy
	}
	entry, err := s.history.At(index)
	if err != nil {
		return err
	}

	s.errMsg = ""
	defer s.changed()

	s.setValue(entry.Result)
	s.state = Complete
	return nil
}

// ClearHistory empties the ledger.
func (s *Session) ClearHistory() error {
	if s.busy {
		return ErrBusy
	}
	s.history.Clear()
	s.historyChanged()
	return nil
}
