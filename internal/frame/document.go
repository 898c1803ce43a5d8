package frame

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrDuplicateContainer is returned when a container id is already taken.
var ErrDuplicateContainer = errors.New("duplicate container id")

// Container is a placeholder element created by an adapter; vendor code
// writes the ad markup into it.
type Container struct {
	mu   sync.Mutex
	id   string
	html string
}

// ID returns the element id.
func (c *Container) ID() string { return c.id }

// SetHTML replaces the container content.
func (c *Container) SetHTML(markup string) {
	c.mu.Lock()
	c.html = markup
	c.mu.Unlock()
}

// HTML returns the current content.
func (c *Container) HTML() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.html
}

// Document is the slot's document: the containers and scripts added to it.
type Document struct {
	mu         sync.Mutex
	containers []*Container
	byID       map[string]*Container
	scripts    []string
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{byID: make(map[string]*Container)}
}

// CreateContainer appends an empty container with the given id.
func (d *Document) CreateContainer(id string) (*Container, error) {
	if id == "" {
		return nil, fmt.Errorf("create container: empty id")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[id]; ok {
		return nil, fmt.Errorf("create container %q: %w", id, ErrDuplicateContainer)
	}
	c := &Container{id: id}
	d.containers = append(d.containers, c)
	d.byID[id] = c
	return c, nil
}

// Container looks up a container by id.
func (d *Document) Container(id string) (*Container, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.byID[id]
	return c, ok
}

// Containers returns the containers in creation order.
func (d *Document) Containers() []*Container {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.containers)
}

// AppendScript adds a script tag; a URL already present is not added twice.
// It reports whether the script was added.
func (d *Document) AppendScript(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slices.Contains(d.scripts, url) {
		return false
	}
	d.scripts = append(d.scripts, url)
	return true
}

// Scripts returns the script URLs in insertion order.
func (d *Document) Scripts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.scripts)
}

// ContainerSnapshot is the JSON form of a container.
type ContainerSnapshot struct {
	ID   string `json:"id"`
	HTML string `json:"html,omitempty"`
}

// DocumentSnapshot is the JSON form of a document.
type DocumentSnapshot struct {
	Containers []ContainerSnapshot `json:"containers"`
	Scripts    []string            `json:"scripts"`
}

// Snapshot returns a point-in-time copy suitable for encoding.
func (d *Document) Snapshot() DocumentSnapshot {
	snap := DocumentSnapshot{Containers: []ContainerSnapshot{}, Scripts: d.Scripts()}
	for _, c := range d.Containers() {
		snap.Containers = append(snap.Containers, ContainerSnapshot{ID: c.ID(), HTML: c.HTML()})
	}
	if snap.Scripts == nil {
		snap.Scripts = []string{}
	}
	return snap
}
