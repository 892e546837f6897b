package twitch

import "github.com/nicklaw5/helix/v2"

// MaxIDsPerRequest caps identifier lists on every Helix lookup.
const MaxIDsPerRequest = 100

type Pagination = helix.Pagination

// Page is one page of a Helix collection.
type Page[T any] struct {
	Data       []T
	Pagination Pagination
}
