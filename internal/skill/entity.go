package skill

import "time"

// Skill is a reusable piece of guidance emitted by the manager's reviews and
// fed into every subsequent worker context. The collection is append-only;
// re-emitting a name replaces that document's content.
type Skill struct {
	Name            string    `yaml:"name" json:"name"`
	Content         string    `yaml:"content" json:"content"`
	SourceIteration int       `yaml:"source_iteration" json:"source_iteration"`
	CreatedAt       time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt       time.Time `yaml:"updated_at" json:"updated_at"`
}
