package conversation

import (
	"strings"
)

// canonicalCommands is the exact-match command table.
var canonicalCommands = map[string]CommandType{
	"APPROVE": CmdApprove,
	"EDIT":    CmdEdit,
	"IGNORE":  CmdIgnore,
	"PAUSE":   CmdPause,
	"RESUME":  CmdResume,
	"STATUS":  CmdStatus,
	"BILLING": CmdBilling,
	"CANCEL":  CmdCancel,
	"HELP":    CmdHelp,
	"STOP":    CmdStop,
}

// typoCommands maps frequent misspellings onto canonical commands. The
// table is fixed; anything fuzzier than this risks executing a command
// the owner never meant to send.
var typoCommands = map[string]CommandType{
	"APROVE":   CmdApprove,
	"APPROV":   CmdApprove,
	"APPORVE":  CmdApprove,
	"APPROVED": CmdApprove,
	"OK":       CmdApprove,
	"EIDT":     CmdEdit,
	"EDTI":     CmdEdit,
	"IGNOR":    CmdIgnore,
	"INGORE":   CmdIgnore,
	"SKIP":     CmdIgnore,
	"PUASE":    CmdPause,
	"PASUE":    CmdPause,
	"RESUEM":   CmdResume,
	"STAUTS":   CmdStatus,
	"STATS":    CmdStatus,
	"BILING":   CmdBilling,
	"CANCLE":   CmdCancel,
	"CANCELL":  CmdCancel,
	"HLEP":     CmdHelp,
}

// affirmatives accepted inside the cancel confirmation, and nowhere
// else. YES outside that state is UNKNOWN so a casual "yes" can never
// cancel a subscription.
var affirmatives = map[string]bool{
	"YES":  true,
	"Y":    true,
	"YEP":  true,
	"YEAH": true,
	"YA":   true,
}

// ParseCommand resolves an inbound message against the current
// conversation state. Resolution order:
//
//  1. In AWAITING_CUSTOM_REPLY anything that is not an exact canonical
//     command is the replacement reply body, preserved un-uppercased.
//     Typo matching is off here: a misspelled word is far more likely
//     to be reply text than a command.
//  2. In AWAITING_CANCEL_CONFIRM a fixed affirmative set confirms and
//     every other input denies. Denial is the fail-safe.
//  3. Exact match against the canonical table.
//  4. Fixed typo table.
//  5. UNKNOWN.
func ParseCommand(raw string, state State) Command {
	trimmed := strings.TrimSpace(raw)
	normalized := strings.ToUpper(trimmed)

	if state == StateAwaitingCustomReply {
		if cmd, ok := canonicalCommands[normalized]; ok {
			return Command{Type: cmd}
		}
		return Command{Type: CmdCustomReply, Payload: trimmed}
	}

	if state == StateAwaitingCancelConfirm {
		if affirmatives[normalized] {
			return Command{Type: CmdCancelConfirm}
		}
		return Command{Type: CmdCancelDeny}
	}

	if cmd, ok := canonicalCommands[normalized]; ok {
		return Command{Type: cmd}
	}
	if cmd, ok := typoCommands[normalized]; ok {
		return Command{Type: cmd}
	}
	return Command{Type: CmdUnknown}
}
