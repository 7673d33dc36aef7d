package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoute_Matches(t *testing.T) {
	route := Route{PathPrefix: "/api/", ServiceName: "svc", Methods: []string{"GET", "POST"}}

	require.True(t, route.Matches("/api/items", "GET"))
	require.True(t, route.Matches("/api/items", "post"))
	require.False(t, route.Matches("/api/items", "DELETE"))
	require.False(t, route.Matches("/other/items", "GET"))
}

func TestRoute_EmptyMethodsMatchAll(t *testing.T) {
	route := Route{PathPrefix: "/api/", ServiceName: "svc"}

	require.True(t, route.Matches("/api/items", "GET"))
	require.True(t, route.Matches("/api/items", "PATCH"))
}

func TestRoute_ForwardPath(t *testing.T) {
	strip := Route{PathPrefix: "/svc", StripPrefix: true}
	require.Equal(t, "/items", strip.ForwardPath("/svc/items"))
	require.Equal(t, "/", strip.ForwardPath("/svc"))

	keep := Route{PathPrefix: "/svc"}
	require.Equal(t, "/svc/items", keep.ForwardPath("/svc/items"))
}

func TestMatchRoute_FirstMatchWins(t *testing.T) {
	routes := []Route{
		{PathPrefix: "/api/special/", ServiceName: "special"},
		{PathPrefix: "/api/", ServiceName: "general"},
	}

	route, ok := matchRoute(routes, "/api/special/x", "GET")
	require.True(t, ok)
	require.Equal(t, "special", route.ServiceName)

	route, ok = matchRoute(routes, "/api/other", "GET")
	require.True(t, ok)
	require.Equal(t, "general", route.ServiceName)

	// Registration order decides ties, not specificity: a broad route
	// registered first shadows a narrower one.
	shadowed := []Route{
		{PathPrefix: "/api/", ServiceName: "general", Timeout: time.Second},
		{PathPrefix: "/api/special/", ServiceName: "special"},
	}
	route, ok = matchRoute(shadowed, "/api/special/x", "GET")
	require.True(t, ok)
	require.Equal(t, "general", route.ServiceName)

	_, ok = matchRoute(routes, "/nope", "GET")
	require.False(t, ok)
}
