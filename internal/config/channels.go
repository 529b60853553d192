package config

import (
	"github.com/psds-microservice/support-bot/internal/model"
)

// Channels maps each category to its operator channel. The zero channel id
// means the category is not configured. Values are copied on construction
// and never mutated afterwards.
type Channels struct {
	byCategory map[model.Category]int64
	byChannel  map[int64]model.Category
}

func NewChannels(groups map[model.Category]int64) Channels {
	ch := Channels{
		byCategory: make(map[model.Category]int64, len(groups)),
		byChannel:  make(map[int64]model.Category, len(groups)),
	}
	for cat, id := range groups {
		if id == 0 {
			continue
		}
		ch.byCategory[cat] = id
		ch.byChannel[id] = cat
	}
	return ch
}

// Lookup returns the channel for cat; ok is false when it is unset.
func (c Channels) Lookup(cat model.Category) (int64, bool) {
	id, ok := c.byCategory[cat]
	return id, ok
}

// CategoryOf reports which category an operator channel serves.
func (c Channels) CategoryOf(chatID int64) (model.Category, bool) {
	cat, ok := c.byChannel[chatID]
	return cat, ok
}

// Contains reports whether chatID is one of the configured operator channels.
func (c Channels) Contains(chatID int64) bool {
	_, ok := c.byChannel[chatID]
	return ok
}
