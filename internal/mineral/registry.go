// Package mineral holds the user-defined mineral classes and their color
// samples.
package mineral

import (
	"strings"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/pkg/colorutil"
)

// Sample is one picked pixel: its image coordinates and color.
type Sample struct {
	X     int
	Y     int
	Color colorutil.RGB
}

// NewSample validates coordinates and returns a Sample.
func NewSample(x, y int, c colorutil.RGB) (Sample, error) {
	if x < 0 || y < 0 {
		return Sample{}, apperr.Validation("sample.new", "coordinates (%d,%d) must be non-negative", x, y)
	}
	return Sample{X: x, Y: y, Color: c}, nil
}

// Class is a named mineral with its samples. Color is the integer mean of
// the sample colors and is recomputed whenever samples change.
type Class struct {
	Name    string
	Color   colorutil.RGB
	Samples []Sample
}

// MeanColor returns the truncated element-wise mean of the sample colors.
func MeanColor(samples []Sample) colorutil.RGB {
	colors := make([]colorutil.RGB, len(samples))
	for i, s := range samples {
		colors[i] = s.Color
	}
	return colorutil.Mean(colors)
}

// Registry maps class names to classes. Insertion order defines the class
// index used by the classifier (0..K-1).
type Registry struct {
	order   []string
	classes map[string]*Class
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*Class)}
}

// AddClass inserts a class or replaces the samples of an existing one.
// A replaced class keeps its index.
func (r *Registry) AddClass(name string, samples []Sample) (*Class, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("registry.add", "mineral name is empty")
	}
	if len(samples) == 0 {
		return nil, apperr.Validation("registry.add", "mineral %q has no samples", name)
	}
	for _, s := range samples {
		if s.X < 0 || s.Y < 0 {
			return nil, apperr.Validation("registry.add", "mineral %q has a sample at negative coordinates (%d,%d)", name, s.X, s.Y)
		}
	}

	c := &Class{
		Name:    name,
		Samples: append([]Sample(nil), samples...),
	}
	c.Color = MeanColor(c.Samples)

	if _, exists := r.classes[name]; !exists {
		r.order = append(r.order, name)
	}
	r.classes[name] = c
	return c, nil
}

// AppendSamples adds samples to an existing class.
func (r *Registry) AppendSamples(name string, samples ...Sample) error {
	c, ok := r.classes[strings.TrimSpace(name)]
	if !ok {
		return apperr.Validation("registry.append", "unknown mineral %q", name)
	}
	if len(samples) == 0 {
		return nil
	}
	c.Samples = append(c.Samples, samples...)
	c.Color = MeanColor(c.Samples)
	return nil
}

// Remove deletes a class. Later classes shift down one index.
func (r *Registry) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if _, ok := r.classes[name]; !ok {
		return false
	}
	delete(r.classes, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every class.
func (r *Registry) Clear() {
	r.order = nil
	r.classes = make(map[string]*Class)
}

// Len returns the number of classes.
func (r *Registry) Len() int { return len(r.order) }

// Get returns the class with the given name.
func (r *Registry) Get(name string) (*Class, bool) {
	c, ok := r.classes[strings.TrimSpace(name)]
	return c, ok
}

// Index returns the class index of name, or -1.
func (r *Registry) Index(name string) int {
	name = strings.TrimSpace(name)
	for i, n := range r.order {
		if n == name {
			return i
		}
	}
	return -1
}

// Names returns class names in index order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Classes returns the classes in index order.
func (r *Registry) Classes() []*Class {
	out := make([]*Class, len(r.order))
	for i, n := range r.order {
		out[i] = r.classes[n]
	}
	return out
}

// SampleCount returns the total number of samples across all classes.
func (r *Registry) SampleCount() int {
	n := 0
	for _, c := range r.classes {
		n += len(c.Samples)
	}
	return n
}

// Clone returns a deep copy.
func (r *Registry) Clone() *Registry {
	out := NewRegistry()
	for _, c := range r.Classes() {
		out.order = append(out.order, c.Name)
		out.classes[c.Name] = &Class{
			Name:    c.Name,
			Color:   c.Color,
			Samples: append([]Sample(nil), c.Samples...),
		}
	}
	return out
}
