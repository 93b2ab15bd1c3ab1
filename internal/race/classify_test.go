package race

import (
	"testing"
)

func mustParse(t *testing.T, body string) Payload {
	t.Helper()
	p, err := ParsePayload([]byte(body))
	if err != nil {
		t.Fatalf("ParsePayload(%q): %v", body, err)
	}
	return p
}

func TestParsePayloadRejectsMalformedBodies(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "not json", `{"code":`, `[1,2,3]`, `"a string"`} {
		if _, err := ParsePayload([]byte(body)); err == nil {
			t.Errorf("ParsePayload(%q): expected error", body)
		}
	}
}

func TestParsePayloadKeepsRawBody(t *testing.T) {
	t.Parallel()

	body := `{"code":0,"data":{"apply_result":1}}`
	p := mustParse(t, body)
	if got := string(p.Raw()); got != body {
		t.Fatalf("Raw() = %q, want %q", got, body)
	}
}

func TestClassifyEligibility(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		eligible bool
		already  bool
		expired  bool
		wantMsg  string
	}{
		{
			name:     "expired token",
			body:     `{"code":100004,"data":null}`,
			eligible: false,
			expired:  true,
			wantMsg:  "Token expired, get a fresh one",
		},
		{
			name:     "already approved",
			body:     `{"code":0,"data":{"is_pass":1,"button_state":1,"deadline_format":"2026-03-01"}}`,
			eligible: false,
			already:  true,
			wantMsg:  "Already approved, unlock available until 2026-03-01",
		},
		{
			name:     "already approved without deadline",
			body:     `{"code":0,"data":{"is_pass":1}}`,
			eligible: false,
			already:  true,
			wantMsg:  "Already approved, unlock available until ",
		},
		{
			name:     "eligible",
			body:     `{"code":0,"data":{"is_pass":4,"button_state":1}}`,
			eligible: true,
			wantMsg:  "Eligible to send unlock request",
		},
		{
			name:     "blocked but worth trying",
			body:     `{"code":0,"data":{"is_pass":4,"button_state":2,"deadline_format":"2026-02-25"}}`,
			eligible: true,
			wantMsg:  "Blocked until 2026-02-25, will try anyway",
		},
		{
			name:     "account too new but worth trying",
			body:     `{"code":0,"data":{"is_pass":4,"button_state":3}}`,
			eligible: true,
			wantMsg:  "Account under 30 days old, will try anyway",
		},
		{
			name:     "unknown is_pass",
			body:     `{"code":0,"data":{"is_pass":99,"button_state":1}}`,
			eligible: false,
			wantMsg:  "Unknown status: is_pass=99, button_state=1",
		},
		{
			name:     "unknown button state",
			body:     `{"code":0,"data":{"is_pass":4,"button_state":99}}`,
			eligible: false,
			wantMsg:  "Unknown status: is_pass=4, button_state=99",
		},
		{
			name:     "is_pass outside the window",
			body:     `{"code":0,"data":{"is_pass":2,"button_state":1}}`,
			eligible: false,
			wantMsg:  "Unknown status: is_pass=2, button_state=1",
		},
		{
			name:     "null data",
			body:     `{"code":0,"data":null}`,
			eligible: false,
			wantMsg:  "Unknown status: is_pass=null, button_state=null",
		},
		{
			name:     "absent data",
			body:     `{"code":0}`,
			eligible: false,
			wantMsg:  "Unknown status: is_pass=null, button_state=null",
		},
		{
			name:     "absent button_state",
			body:     `{"code":0,"data":{"is_pass":4}}`,
			eligible: false,
			wantMsg:  "Unknown status: is_pass=4, button_state=null",
		},
		{
			name:     "absent code still classifies data",
			body:     `{"data":{"is_pass":4,"button_state":1}}`,
			eligible: true,
			wantMsg:  "Eligible to send unlock request",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ClassifyEligibility(mustParse(t, tc.body))
			if got.Eligible != tc.eligible {
				t.Errorf("Eligible = %v, want %v", got.Eligible, tc.eligible)
			}
			if got.AlreadyApproved != tc.already {
				t.Errorf("AlreadyApproved = %v, want %v", got.AlreadyApproved, tc.already)
			}
			if got.Expired != tc.expired {
				t.Errorf("Expired = %v, want %v", got.Expired, tc.expired)
			}
			if got.Message != tc.wantMsg {
				t.Errorf("Message = %q, want %q", got.Message, tc.wantMsg)
			}
			if string(got.Raw) != tc.body {
				t.Errorf("Raw = %q, want original body", got.Raw)
			}
		})
	}
}

func TestClassifyApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		status  ApplyStatus
		wantMsg string
	}{
		{
			name:    "approved",
			body:    `{"code":0,"data":{"apply_result":1}}`,
			status:  ApplyApproved,
			wantMsg: "Approved!",
		},
		{
			name:    "quota reached",
			body:    `{"code":0,"data":{"apply_result":3,"deadline_format":"2026-02-24"}}`,
			status:  ApplyRejected,
			wantMsg: "Quota reached until 2026-02-24",
		},
		{
			name:    "quota reached without deadline",
			body:    `{"code":0,"data":{"apply_result":3}}`,
			status:  ApplyRejected,
			wantMsg: "Quota reached until ?",
		},
		{
			name:    "blocked",
			body:    `{"code":0,"data":{"apply_result":4,"deadline_format":"2026-03-15"}}`,
			status:  ApplyRejected,
			wantMsg: "Blocked until 2026-03-15",
		},
		{
			name:   "retry invitation",
			body:   `{"code":100001}`,
			status: ApplyRetry,
		},
		{
			name:    "answered before deciding",
			body:    `{"code":100003}`,
			status:  ApplyUncertain,
			wantMsg: "Possibly approved (code 100003)",
		},
		{
			name:    "unexpected code",
			body:    `{"code":123456}`,
			status:  ApplyRejected,
			wantMsg: "Unexpected response: code=123456",
		},
		{
			name:    "code ok but null data",
			body:    `{"code":0,"data":null}`,
			status:  ApplyRejected,
			wantMsg: "Unexpected response: code=0",
		},
		{
			name:    "code ok but no apply_result",
			body:    `{"code":0,"data":{"is_pass":4}}`,
			status:  ApplyRejected,
			wantMsg: "Unexpected response: code=0",
		},
		{
			name:    "unknown apply_result",
			body:    `{"code":0,"data":{"apply_result":2}}`,
			status:  ApplyRejected,
			wantMsg: "Unexpected response: code=0",
		},
		{
			// An absent code must never be read as code 0: apply_result alone
			// cannot approve.
			name:    "absent code never approves",
			body:    `{"data":{"apply_result":1}}`,
			status:  ApplyRejected,
			wantMsg: "Unexpected response: code=null",
		},
		{
			name:    "null payload",
			body:    `null`,
			status:  ApplyRejected,
			wantMsg: "Unexpected response: code=null",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ClassifyApply(mustParse(t, tc.body))
			if got.Status != tc.status {
				t.Errorf("Status = %v, want %v", got.Status, tc.status)
			}
			if got.Message != tc.wantMsg {
				t.Errorf("Message = %q, want %q", got.Message, tc.wantMsg)
			}
		})
	}
}

func TestApplyStatusString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status ApplyStatus
		want   string
	}{
		{ApplyRejected, "rejected"},
		{ApplyApproved, "approved"},
		{ApplyRetry, "retry"},
		{ApplyUncertain, "uncertain"},
	}
	for _, tc := range tests {
		if got := tc.status.String(); got != tc.want {
			t.Errorf("String(%d) = %q, want %q", int(tc.status), got, tc.want)
		}
	}
}
