package conversation

import (
	"testing"
)

func TestParseCommand_Normalization(t *testing.T) {
	tests := []struct {
		input string
		want  CommandType
	}{
		{"APPROVE", CmdApprove},
		{"approve", CmdApprove},
		{"  Approve  ", CmdApprove},
		{"edit", CmdEdit},
		{"IGNORE", CmdIgnore},
		{"pause", CmdPause},
		{"Resume", CmdResume},
		{"status", CmdStatus},
		{"BILLING", CmdBilling},
		{"cancel", CmdCancel},
		{"help", CmdHelp},
		{"STOP", CmdStop},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseCommand(tt.input, StateIdle)
			if got.Type != tt.want {
				t.Errorf("ParseCommand(%q) = %s, want %s", tt.input, got.Type, tt.want)
			}
		})
	}
}

func TestParseCommand_TypoTable(t *testing.T) {
	tests := []struct {
		input string
		want  CommandType
	}{
		{"APROVE", CmdApprove},
		{"approv", CmdApprove},
		{"CANCLE", CmdCancel},
		{"puase", CmdPause},
		{"stauts", CmdStatus},
		{"hlep", CmdHelp},
	}

	for _, tt := range tests {
		got := ParseCommand(tt.input, StateIdle)
		if got.Type != tt.want {
			t.Errorf("ParseCommand(%q) = %s, want %s", tt.input, got.Type, tt.want)
		}
	}
}

func TestParseCommand_YesOnlyMeaningfulInCancelConfirm(t *testing.T) {
	if got := ParseCommand("YES", StateIdle); got.Type != CmdUnknown {
		t.Errorf("YES outside cancel confirm = %s, want UNKNOWN", got.Type)
	}
	if got := ParseCommand("NO", StateIdle); got.Type != CmdUnknown {
		t.Errorf("NO outside cancel confirm = %s, want UNKNOWN", got.Type)
	}
	if got := ParseCommand("YES", StateAwaitingApproval); got.Type != CmdUnknown {
		t.Errorf("YES in awaiting approval = %s, want UNKNOWN", got.Type)
	}
}

func TestParseCommand_CancelConfirmFailSafe(t *testing.T) {
	for _, input := range []string{"YES", "y", "Yep", "YEAH", "ya"} {
		if got := ParseCommand(input, StateAwaitingCancelConfirm); got.Type != CmdCancelConfirm {
			t.Errorf("ParseCommand(%q, cancel confirm) = %s, want CANCEL_CONFIRM", input, got.Type)
		}
	}

	// Anything else, including other commands and ambiguous text, is a
	// denial. Never cancel on ambiguous input.
	for _, input := range []string{"NO", "nope", "anything else", "sure why not", "APPROVE", ""} {
		if got := ParseCommand(input, StateAwaitingCancelConfirm); got.Type != CmdCancelDeny {
			t.Errorf("ParseCommand(%q, cancel confirm) = %s, want CANCEL_DENY", input, got.Type)
		}
	}
}

func TestParseCommand_CustomReplyFlow(t *testing.T) {
	got := ParseCommand("Thanks so much for coming in, Maria!", StateAwaitingCustomReply)
	if got.Type != CmdCustomReply {
		t.Fatalf("free text in custom reply = %s, want CUSTOM_REPLY", got.Type)
	}
	if got.Payload != "Thanks so much for coming in, Maria!" {
		t.Errorf("payload = %q, original casing not preserved", got.Payload)
	}

	// Explicit commands override the edit flow.
	if got := ParseCommand("HELP", StateAwaitingCustomReply); got.Type != CmdHelp {
		t.Errorf("HELP in custom reply = %s, want HELP", got.Type)
	}
	if got := ParseCommand("cancel", StateAwaitingCustomReply); got.Type != CmdCancel {
		t.Errorf("cancel in custom reply = %s, want CANCEL", got.Type)
	}

	// Typos do NOT override: a misspelled word is reply text.
	if got := ParseCommand("aprove", StateAwaitingCustomReply); got.Type != CmdCustomReply {
		t.Errorf("typo in custom reply = %s, want CUSTOM_REPLY", got.Type)
	}
}

func TestParseCommand_Unknown(t *testing.T) {
	for _, input := range []string{"", "what", "hello there", "123"} {
		if got := ParseCommand(input, StateIdle); got.Type != CmdUnknown {
			t.Errorf("ParseCommand(%q) = %s, want UNKNOWN", input, got.Type)
		}
	}
}
