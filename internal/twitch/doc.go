// Package twitch talks to Twitch's identity and Helix endpoints.
//
// AuthManager runs the OAuth device authorization grant and keeps the single account's token
// fresh. Users, streams and videos are fetched with the helix SDK, with Client as its HTTP
// transport: Client supplies the token and tracks the server-reported rate-limit budget.
package twitch
