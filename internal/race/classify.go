package race

import (
	"encoding/json"
	"strconv"
)

// Service codes observed in production.
const (
	codeOK           = 0
	codeRetryLater   = 100001 // rejected, but the service invites an immediate retry
	codeMaybe        = 100003 // answered before deciding; outcome unknown
	codeTokenExpired = 100004

	applyApproved = 1
	applyQuota    = 3
	applyBlocked  = 4

	passApproved = 1
	passInWindow = 4

	buttonOpen    = 1
	buttonBlocked = 2
	buttonTooNew  = 3
)

// Payload is a decoded service response. Pointer fields keep "absent" and
// "zero" apart: a body without a code must never be read as code 0.
type Payload struct {
	Code *int64       `json:"code"`
	Data *PayloadData `json:"data"`

	raw json.RawMessage
}

type PayloadData struct {
	IsPass         *int64 `json:"is_pass"`
	ButtonState    *int64 `json:"button_state"`
	ApplyResult    *int64 `json:"apply_result"`
	DeadlineFormat string `json:"deadline_format"`
}

// ParsePayload decodes a response body. Callers treat a decode failure like a
// transport failure (retry), so malformed bodies never reach the classifiers.
func ParsePayload(body []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, err
	}
	p.raw = append(json.RawMessage(nil), body...)
	return p, nil
}

// Raw returns the undecoded body the payload was parsed from.
func (p Payload) Raw() json.RawMessage { return p.raw }

func (p Payload) code() (int64, bool) {
	if p.Code == nil {
		return 0, false
	}
	return *p.Code, true
}

// data never returns nil, so field reads below stay flat.
func (p Payload) data() PayloadData {
	if p.Data == nil {
		return PayloadData{}
	}
	return *p.Data
}

func numOrNull(v *int64) string {
	if v == nil {
		return "null"
	}
	return strconv.FormatInt(*v, 10)
}

// Eligibility is the verdict of one status check. Two ineligible states are
// special enough for their own flag: AlreadyApproved means a previous request
// went through and the unlock window is open; Expired means the credential is
// dead and no amount of retrying helps.
type Eligibility struct {
	Eligible        bool
	AlreadyApproved bool
	Expired         bool
	Message         string
	Raw             json.RawMessage
}

// ApplyStatus tags the verdict of one apply attempt.
type ApplyStatus int

const (
	ApplyRejected ApplyStatus = iota
	ApplyApproved
	// ApplyRetry is not a terminal verdict: the worker retries immediately.
	ApplyRetry
	// ApplyUncertain means the worker must re-check eligibility to disambiguate.
	ApplyUncertain
)

func (s ApplyStatus) String() string {
	switch s {
	case ApplyApproved:
		return "approved"
	case ApplyRetry:
		return "retry"
	case ApplyUncertain:
		return "uncertain"
	default:
		return "rejected"
	}
}

type ApplyVerdict struct {
	Status  ApplyStatus
	Message string
	Raw     json.RawMessage
}

// ClassifyEligibility maps a status-check payload to an eligibility verdict.
// Absent or null fields fall through to the ineligible "unknown status" path,
// never to a crash.
func ClassifyEligibility(p Payload) Eligibility {
	if code, ok := p.code(); ok && code == codeTokenExpired {
		return Eligibility{Eligible: false, Expired: true, Message: "Token expired, get a fresh one", Raw: p.Raw()}
	}

	d := p.data()
	if d.IsPass != nil && *d.IsPass == passApproved {
		return Eligibility{
			Eligible:        false,
			AlreadyApproved: true,
			Message:         "Already approved, unlock available until " + d.DeadlineFormat,
			Raw:             p.Raw(),
		}
	}
	if d.IsPass != nil && *d.IsPass == passInWindow && d.ButtonState != nil {
		switch *d.ButtonState {
		case buttonOpen:
			return Eligibility{Eligible: true, Message: "Eligible to send unlock request", Raw: p.Raw()}
		case buttonBlocked:
			return Eligibility{Eligible: true, Message: "Blocked until " + d.DeadlineFormat + ", will try anyway", Raw: p.Raw()}
		case buttonTooNew:
			return Eligibility{Eligible: true, Message: "Account under 30 days old, will try anyway", Raw: p.Raw()}
		}
	}

	return Eligibility{
		Eligible: false,
		Message:  "Unknown status: is_pass=" + numOrNull(d.IsPass) + ", button_state=" + numOrNull(d.ButtonState),
		Raw:      p.Raw(),
	}
}

// ClassifyApply maps an apply-call payload to a verdict. Anything it does not
// positively recognize is a rejection, never an approval.
func ClassifyApply(p Payload) ApplyVerdict {
	code, ok := p.code()
	d := p.data()

	if ok && code == codeOK && d.ApplyResult != nil {
		switch *d.ApplyResult {
		case applyApproved:
			return ApplyVerdict{Status: ApplyApproved, Message: "Approved!", Raw: p.Raw()}
		case applyQuota:
			return ApplyVerdict{Status: ApplyRejected, Message: "Quota reached until " + orUnknown(d.DeadlineFormat), Raw: p.Raw()}
		case applyBlocked:
			return ApplyVerdict{Status: ApplyRejected, Message: "Blocked until " + orUnknown(d.DeadlineFormat), Raw: p.Raw()}
		}
	}

	if ok && code == codeRetryLater {
		return ApplyVerdict{Status: ApplyRetry, Raw: p.Raw()}
	}
	if ok && code == codeMaybe {
		return ApplyVerdict{Status: ApplyUncertain, Message: "Possibly approved (code 100003)", Raw: p.Raw()}
	}

	codeText := "null"
	if ok {
		codeText = strconv.FormatInt(code, 10)
	}
	return ApplyVerdict{Status: ApplyRejected, Message: "Unexpected response: code=" + codeText, Raw: p.Raw()}
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
