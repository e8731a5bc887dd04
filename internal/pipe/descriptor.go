package pipe

import "github.com/pipebase/pipebased/internal/pipeerr"

// EnvVar is one (key, value) environment entry. envs is an ordered
// sequence; duplicates are permitted, with last-writer-wins semantics
// when rendered into a unit file.
type EnvVar struct {
	Key   string
	Value string
}

// Default values applied by the daemon façade when a caller omits
// them.
const (
	DefaultUser        = "pipebase"
	DefaultGroup       = "pipebase"
	DefaultDescription = "a pipebase application"
)

// Descriptor is the fully-resolved set of parameters for creating one
// pipe. It is constructed by the daemon façade, which has already
// resolved AppPath/CatalogsPath via the repository manager and applied
// defaults for Description/User/Group.
type Descriptor struct {
	ID           string
	Description  string
	User         string
	Group        string
	Envs         []EnvVar
	AppPath      string
	CatalogsPath string
}

// Option customizes a Descriptor built by NewDescriptor using Go's
// functional-options pattern.
type Option func(*Descriptor)

// WithDescription overrides the unit's [Unit] Description.
func WithDescription(description string) Option {
	return func(d *Descriptor) { d.Description = description }
}

// WithUser overrides the unit's run-as user.
func WithUser(user string) Option {
	return func(d *Descriptor) { d.User = user }
}

// WithGroup overrides the unit's run-as group.
func WithGroup(group string) Option {
	return func(d *Descriptor) { d.Group = group }
}

// WithEnvs appends environment entries in order.
func WithEnvs(envs []EnvVar) Option {
	return func(d *Descriptor) { d.Envs = append(d.Envs, envs...) }
}

// NewDescriptor builds a Descriptor for id, appPath and catalogsPath,
// applying the documented defaults and then opts in order. All
// required fields are validated before first use: id, appPath and
// catalogsPath must be non-empty.
func NewDescriptor(id, appPath, catalogsPath string, opts ...Option) (Descriptor, error) {
	if id == "" {
		return Descriptor{}, pipeerr.Pipe(pipeerr.PipeOpCreate, "pipe id must not be empty")
	}
	if appPath == "" || catalogsPath == "" {
		return Descriptor{}, pipeerr.Path(pipeerr.PipeOpCreate, "app path and catalogs path are required")
	}
	d := Descriptor{
		ID:           id,
		Description:  DefaultDescription,
		User:         DefaultUser,
		Group:        DefaultGroup,
		AppPath:      appPath,
		CatalogsPath: catalogsPath,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d, nil
}
