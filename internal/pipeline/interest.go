package pipeline

import (
	"strings"

	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/ports"
)

// InterestVerdict is the call-stage interest decision.
type InterestVerdict struct {
	Interested bool
	// Defaulted is true when no designated topic carried an explicit answer.
	Defaulted bool
	// Topic is the section that decided, if any.
	Topic string
}

// InterestPolicy decides whether a completed call counts as interested.
type InterestPolicy interface {
	Decide(responses map[string]ports.TopicResponse) InterestVerdict
}

// NegativeTopicPolicy treats a lead as interested unless one of Topics was
// answered "no". Topics are checked in order.
type NegativeTopicPolicy struct {
	Topics []string
}

// DefaultInterestPolicy checks the education and area-of-interest answers.
func DefaultInterestPolicy() NegativeTopicPolicy {
	return NegativeTopicPolicy{Topics: []string{SectionVerifyEducation, SectionAreaOfInterest}}
}

func (p NegativeTopicPolicy) Decide(responses map[string]ports.TopicResponse) InterestVerdict {
	explicitYes := ""
	for _, topic := range p.Topics {
		resp, ok := responses[topic]
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(resp.Response)) {
		case "no":
			return InterestVerdict{Interested: false, Topic: topic}
		case "yes":
			if explicitYes == "" {
				explicitYes = topic
			}
		}
	}
	if explicitYes != "" {
		return InterestVerdict{Interested: true, Topic: explicitYes}
	}
	return InterestVerdict{Interested: true, Defaulted: true}
}

// extractConfirmed reads the values the lead verified during the call.
func extractConfirmed(responses map[string]ports.TopicResponse) domain.Confirmed {
	var c domain.Confirmed
	accepted := false
	for section, resp := range responses {
		switch section {
		case SectionVerifyIdentity:
			if resp.Confirmed {
				c.Email = strings.TrimSpace(resp.Value)
			}
		case SectionCollectAddress:
			c.Address = strings.TrimSpace(resp.Value)
		case SectionAreaOfInterest:
			c.AreaOfInterest = strings.TrimSpace(resp.Value)
		case SectionTCPACompliance:
			accepted = strings.EqualFold(strings.TrimSpace(resp.Response), "yes")
		}
	}
	c.TCPAAccepted = &accepted
	return c
}
