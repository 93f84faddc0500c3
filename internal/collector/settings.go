package collector

import (
	"fmt"
	"os"
	"sync"

	"github.com/penshort/beacon/internal/model"
	"gopkg.in/yaml.v3"
)

// Settings is what the collector serves back to SDKs.
type Settings struct {
	Behavior model.BehaviorSettings `yaml:"behavior"`
	Content  []model.Content        `yaml:"content"`
}

// LoadSettings reads a YAML settings file. An empty path yields empty
// settings.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings file: %w", err)
	}
	return s, nil
}

// ContentQueue hands out content blocks one fetch at a time.
type ContentQueue struct {
	mu     sync.Mutex
	blocks []model.Content
}

// NewContentQueue returns a queue preloaded with the valid blocks.
func NewContentQueue(blocks ...model.Content) *ContentQueue {
	q := &ContentQueue{}
	for _, b := range blocks {
		q.Push(b)
	}
	return q
}

// Push appends c. Blocks without html are ignored.
func (q *ContentQueue) Push(c model.Content) bool {
	if !c.Valid() {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blocks = append(q.blocks, c)
	return true
}

// Next removes and returns the oldest block.
func (q *ContentQueue) Next() (model.Content, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.blocks) == 0 {
		return model.Content{}, false
	}
	c := q.blocks[0]
	q.blocks = q.blocks[1:]
	return c, true
}

// Len returns the number of queued blocks.
func (q *ContentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.blocks)
}
