// Package chat is the Twitch IRC bridge for DJ mode.
//
// Each joined channel acts as one guild: the channel name is both the session
// key and the notification target used when a session ends because nothing
// more could be found to play.
//
// Commands:
//   - !dj [prompt | link | song: X; artist: Y; genre: Z] starts a session.
//   - !skip skips the current track and counts a skip-button press.
//   - !stop tears the session down.
//   - !voice [key] shows or sets the commentary voice (moderators and the
//     broadcaster only).
//
// Credentials: the IRC client requires a bot username and an OAuth token with
// chat:read/chat:edit scopes (TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN).
package chat
