package domain

import "time"

// Preferences are the matching filters a user submits with join_queue.
// Zero values mean "no preference".
type Preferences struct {
	Language         string   `json:"language,omitempty"`
	Age              int      `json:"age,omitempty"`
	AgeMin           int      `json:"age_min,omitempty"`
	AgeMax           int      `json:"age_max,omitempty"`
	Gender           string   `json:"gender,omitempty"`
	GenderPreference string   `json:"gender_preference,omitempty"`
	Blocked          []string `json:"blocked,omitempty"`
}

// HasBlocked reports whether identity is on the blocked list.
func (p Preferences) HasBlocked(identity string) bool {
	for _, b := range p.Blocked {
		if b == identity {
			return true
		}
	}
	return false
}

func (p Preferences) acceptsGender(g string) bool {
	return p.GenderPreference == "" || g == "" || p.GenderPreference == g
}

func (p Preferences) acceptsAge(age int) bool {
	if age == 0 {
		return true
	}
	if p.AgeMin > 0 && age < p.AgeMin {
		return false
	}
	if p.AgeMax > 0 && age > p.AgeMax {
		return false
	}
	return true
}

// QueueEntry is a single waiter in the matchmaking queue.
// An identity holds at most one entry at a time.
type QueueEntry struct {
	Identity   string
	Prefs      Preferences
	EnqueuedAt time.Time
}

// NewQueueEntry records a waiter with its submitted preferences.
func NewQueueEntry(identity string, prefs Preferences) *QueueEntry {
	return &QueueEntry{
		Identity:   identity,
		Prefs:      prefs,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Compatible is the matching policy: mutual non-block, gender preferences
// satisfied both ways, same language when both state one, and each waiter's
// age inside the other's requested range. Self-matching is excluded.
func Compatible(a, b *QueueEntry) bool {
	if a == nil || b == nil || a.Identity == b.Identity {
		return false
	}
	if a.Prefs.HasBlocked(b.Identity) || b.Prefs.HasBlocked(a.Identity) {
		return false
	}
	if !a.Prefs.acceptsGender(b.Prefs.Gender) || !b.Prefs.acceptsGender(a.Prefs.Gender) {
		return false
	}
	if a.Prefs.Language != "" && b.Prefs.Language != "" && a.Prefs.Language != b.Prefs.Language {
		return false
	}
	if !a.Prefs.acceptsAge(b.Prefs.Age) || !b.Prefs.acceptsAge(a.Prefs.Age) {
		return false
	}
	return true
}
