package detect

// Composite weights. Behavior is weighted highest: it is the most direct
// human-versus-script signal available at request time.
const (
	weightIdentity = 0.3
	weightOrigin   = 0.2
	weightBehavior = 0.5

	blockThreshold = 0.5
)

// Decision is the aggregator's output for one request.
type Decision struct {
	Block              bool
	Combined           float64
	Reason             string
	ChallengeSatisfied bool
}

// Aggregate combines the three partial scores into the final verdict.
//
// A request already classified as headless or internally inconsistent is
// blocked unconditionally, regardless of the other scores. A known-automation
// client is likewise treated as flagged, but a presented challenge token
// satisfies the challenge for that path — and for the weighted path — for
// this single request. Headless classification is never forgiven by a token.
func Aggregate(s *Signals, captchaToken string) Decision {
	combined := s.UAScore*weightIdentity + s.OriginScore*weightOrigin + s.BehaviorScore*weightBehavior
	s.Combined = combined

	d := Decision{Combined: combined, Reason: s.Reason}

	if s.Reason == ReasonHeadless {
		d.Block = true
		s.SuspectBot = true
		return d
	}

	suspect := s.Reason == ReasonKnownBot || combined > blockThreshold
	if !suspect {
		return d
	}

	s.SuspectBot = true
	if captchaToken != "" {
		d.ChallengeSatisfied = true
		return d
	}
	d.Block = true
	if d.Reason == ReasonClean || d.Reason == "" {
		d.Reason = "high_score"
	}
	return d
}
