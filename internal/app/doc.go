// Package app provides the application service layer.
//
// TwitchService puts caches in front of the Twitch client. RecordService owns the bookmark
// store, LinkingService attaches bookmarks to VODs, and DiscoveryService does that linking on a
// schedule. Depends on domain interfaces, not concrete adapters.
package app
