package entity

import "time"

type Option struct {
	Answer string `json:"answer"`
	Votes  int    `json:"votes"`
}

type Poll struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Options   []Option  `json:"options"`
	CreatedBy string    `json:"createdBy"`
	Voters    []string  `json:"voters"`
	CreatedAt time.Time `json:"createdAt"`
}

// OptionIndex returns the position of the option with the given answer or -1.
func (p Poll) OptionIndex(answer string) int {
	for i, o := range p.Options {
		if o.Answer == answer {
			return i
		}
	}
	return -1
}

func (p Poll) HasVoter(userID string) bool {
	for _, v := range p.Voters {
		if v == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share option or voter slices.
func (p Poll) Clone() Poll {
	c := p
	c.Options = CloneOptions(p.Options)
	c.Voters = append([]string{}, p.Voters...)
	return c
}

func CloneOptions(options []Option) []Option {
	out := make([]Option, len(options))
	copy(out, options)
	return out
}
