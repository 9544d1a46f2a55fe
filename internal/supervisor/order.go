package supervisor

// StartupOrder names the startup sequence of the supervised children.
// The Supervisor launches children in slice order but does not wait for
// one to be running before launching the next.
var StartupOrder = []string{
	"event_store",
	"producer",
	"pattern_matcher",
	"analytics",
	"processor",
	"coordinator",
	"broker_adapter",
}
