package events

var ConsentRevokedTopic = "ConsentRevokedEvent"

type ConsentRevoked struct {
	RuleID int
}
