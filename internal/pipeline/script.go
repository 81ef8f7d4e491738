package pipeline

import (
	"fmt"
	"strings"

	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/ports"
)

// DefaultTCPAText is read to the lead before consent is requested.
const DefaultTCPAText = "This call is being recorded for quality assurance purposes"

// Script section names. The provider reports answers keyed by these.
const (
	SectionIntro            = "intro"
	SectionVerifyIdentity   = "verify_identity"
	SectionVerifyAddress    = "verify_address"
	SectionCollectAddress   = "collect_address"
	SectionVerifyEducation  = "verify_education"
	SectionCollectEducation = "collect_education"
	SectionAreaOfInterest   = "area_of_interest"
	SectionTCPACompliance   = "tcpa_compliance"
	SectionConclusion       = "conclusion"
	SectionEndCall          = "end_call"
)

type step map[string]any

func next(section string) step { return step{"next": section} }

func say(message, section string) step { return step{"message": message, "next": section} }

// BuildScript generates the verification conversation for lead.
func BuildScript(lead domain.Lead, tcpaText string) ports.Script {
	if strings.TrimSpace(tcpaText) == "" {
		tcpaText = DefaultTCPAText
	}
	education := lead.EducationLevel
	if strings.TrimSpace(education) == "" {
		education = "higher education"
	}
	address := strings.TrimSpace(fmt.Sprintf("%s, %s, %s %s", lead.Address, lead.City, lead.State, lead.Zip))

	return ports.Script{
		SectionIntro: fmt.Sprintf("Hello, may I speak with %s? I'm calling about your recent inquiry regarding educational opportunities.", lead.FullName()),
		SectionVerifyIdentity: []step{{
			"message": "Great! To confirm I'm speaking with the right person, could you please confirm your email address?",
			"responses": map[string]step{
				"confirmed": next(SectionVerifyAddress),
				"incorrect": say("I apologize for the confusion. Let me double-check our records.", SectionEndCall),
				"unknown":   say("No problem. Let's move forward.", SectionVerifyAddress),
			},
		}},
		SectionVerifyAddress: []step{{
			"message": fmt.Sprintf("Thank you. And I have your address as %s. Is that correct?", address),
			"responses": map[string]step{
				"yes": next(SectionVerifyEducation),
				"no":  say("I'll make a note to update our records. What is your current address?", SectionCollectAddress),
			},
		}},
		SectionCollectAddress: []step{
			say("Thank you for that updated information. I've made a note of your new address.", SectionVerifyEducation),
		},
		SectionVerifyEducation: []step{{
			"message": fmt.Sprintf("I see you're interested in %s. Is that still the case?", education),
			"responses": map[string]step{
				"yes": next(SectionAreaOfInterest),
				"no":  say("What level of education are you interested in now?", SectionCollectEducation),
			},
		}},
		SectionCollectEducation: []step{
			say("Thank you for updating that information.", SectionAreaOfInterest),
		},
		SectionAreaOfInterest: []step{
			say("What specific area of study are you most interested in pursuing?", SectionTCPACompliance),
		},
		SectionTCPACompliance: []step{{
			"message": tcpaText,
			"responses": map[string]step{
				"yes": say("Thank you for confirming.", SectionConclusion),
				"no":  say("That's absolutely fine. We can still proceed with your request.", SectionConclusion),
			},
		}},
		SectionConclusion: []step{{
			"message": "Thank you for confirming your information. We will match you with institutions that offer programs in your area of interest. Do you have any questions before we conclude this call?",
			"responses": map[string]step{
				"yes": say("I'll note your question for our enrollment specialists.", SectionEndCall),
				"no":  next(SectionEndCall),
			},
		}},
		SectionEndCall: []step{
			{"message": "Thank you for your time today. Have a great day!"},
		},
	}
}
