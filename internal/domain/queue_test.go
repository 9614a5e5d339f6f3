package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompatible(t *testing.T) {
	tests := []struct {
		name string
		a    Preferences
		b    Preferences
		want bool
	}{
		{
			name: "no preferences",
			want: true,
		},
		{
			name: "same language",
			a:    Preferences{Language: "en"},
			b:    Preferences{Language: "en"},
			want: true,
		},
		{
			name: "different languages",
			a:    Preferences{Language: "en"},
			b:    Preferences{Language: "ru"},
			want: false,
		},
		{
			name: "one side without language preference",
			a:    Preferences{Language: "en"},
			b:    Preferences{},
			want: true,
		},
		{
			name: "a blocks b",
			a:    Preferences{Blocked: []string{"bob"}},
			want: false,
		},
		{
			name: "b blocks a",
			b:    Preferences{Blocked: []string{"alice"}},
			want: false,
		},
		{
			name: "mutual gender acceptance",
			a:    Preferences{Gender: "f", GenderPreference: "m"},
			b:    Preferences{Gender: "m", GenderPreference: "f"},
			want: true,
		},
		{
			name: "one-sided gender rejection",
			a:    Preferences{Gender: "f", GenderPreference: "f"},
			b:    Preferences{Gender: "m"},
			want: false,
		},
		{
			name: "unstated gender passes any preference",
			a:    Preferences{GenderPreference: "f"},
			b:    Preferences{},
			want: true,
		},
		{
			name: "age inside both ranges",
			a:    Preferences{Age: 25, AgeMin: 20, AgeMax: 30},
			b:    Preferences{Age: 28, AgeMin: 18, AgeMax: 40},
			want: true,
		},
		{
			name: "age below requested minimum",
			a:    Preferences{AgeMin: 30},
			b:    Preferences{Age: 22},
			want: false,
		},
		{
			name: "age above requested maximum",
			a:    Preferences{AgeMax: 25},
			b:    Preferences{Age: 40},
			want: false,
		},
		{
			name: "unstated age passes any range",
			a:    Preferences{AgeMin: 18, AgeMax: 30},
			b:    Preferences{},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewQueueEntry("alice", tt.a)
			b := NewQueueEntry("bob", tt.b)
			assert.Equal(t, tt.want, Compatible(a, b))
			assert.Equal(t, tt.want, Compatible(b, a), "compatibility is symmetric")
		})
	}
}

func TestCompatible_NeverSelf(t *testing.T) {
	entry := NewQueueEntry("alice", Preferences{})
	other := NewQueueEntry("alice", Preferences{})
	assert.False(t, Compatible(entry, other))
	assert.False(t, Compatible(entry, entry))
	assert.False(t, Compatible(nil, entry))
	assert.False(t, Compatible(entry, nil))
}
