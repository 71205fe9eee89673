package bot

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"leech-bot/internal/domain"
	"leech-bot/internal/service"
)

const (
	msgTryAgain        = "❌ Something went wrong on our side. Please try again in a moment."
	msgOwnerOnly       = "❌ This command is only for admins."
	msgTokenInvalid    = "❌ Invalid verification token.\n\nPlease request a new verification link with /leech."
	msgTokenExpired    = "⌛ This verification link has expired.\n\nSend /leech again to get a fresh one."
	msgTokenUsed       = "ℹ️ This verification link was already used. Your account stays verified."
	msgCallbackHint    = "Please use the verification link to complete the process."
	msgUnknownCommand  = "🤔 Unknown command. Use /help to see what I can do."
	msgVerified        = "✅ Verification Successful!\n\n🎉 Congratulations! Your account has been verified.\n🚀 You now have unlimited access to the bot.\n\nUse /leech to start downloading files!"
	msgTestForwardBody = "🧪 Auto-forward test message"
)

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func statusLine(rec domain.UserRecord, limit int) string {
	if rec.IsVerified {
		return "✅ Status: Verified (Unlimited access)"
	}
	return fmt.Sprintf("⏳ Status: %d attempts remaining", rec.RemainingFree(limit))
}

func startMessage(name string, rec domain.UserRecord, limit int) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(`🤖 Welcome %s!

🚀 Terabox Leech Bot
📥 Send me any link or use /leech to start

✨ Features:
• %d free leech attempts
• Token verification system
• Auto-backup to channel 📢
• Unlimited access after verification

📊 Your Stats: %d/%d attempts used
%s

💡 Commands:
/start - Start the bot
/help - Get help
/leech - Leech a link
/stats - Check your stats`, name, limit, rec.FreeAttemptsUsed, limit, statusLine(rec, limit))
}

func helpMessage(limit int, isOwner bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, `🤖 Terabox Leech Bot Help

How it works:
• You get %d free leech attempts
• After that, verify once through the shortlink
• Verified users have unlimited access
• Every leeched file is backed up to our channel

Commands:
/start - Start bot
/help - Show this help
/leech <link> - Leech a link
/stats - View your stats`, limit)
	if isOwner {
		b.WriteString(`

Admin Commands:
/testforward - Test auto-forward
/testapi - Test shortlink API`)
	}
	return b.String()
}

func leechAcceptedMessage(rec domain.UserRecord, limit int, autoForward bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Leech Attempt #%d\n\n🚀 Processing your request...\n📊 Status: Success", rec.TotalAttempts)
	if autoForward {
		b.WriteString("\n📢 Auto-forwarding to backup channel...")
	}
	if !rec.IsVerified {
		fmt.Fprintf(&b, "\n\n⏳ Remaining Free Attempts: %d", rec.RemainingFree(limit))
	}
	return b.String()
}

func verificationMessage(issued service.IssuedToken, limit int, tutorial string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `🔒 Verification Required!

You have used all your free attempts (%d).
To continue using the bot, please verify your account.

How to verify:
1. Click the verification link below
2. Complete the verification process
3. Come back and try again

🔗 Verification Link: %s`, limit, issued.VerificationURL)
	if tutorial != "" {
		fmt.Fprintf(&b, "\n\n📺 Tutorial: %s", tutorial)
	}
	fmt.Fprintf(&b, "\n\n⏰ This verification link expires in %s.", humanDuration(issued.ExpiresAt.Sub(issued.IssuedAt)))
	return b.String()
}

func rateLimitedMessage(retryAfter time.Duration) string {
	wait := "a few minutes"
	if retryAfter > 0 {
		wait = humanDuration(retryAfter.Truncate(time.Minute) + time.Minute)
	}
	return fmt.Sprintf("⏳ Too many verification links requested. Please try again in %s.", wait)
}

func verificationKeyboard(verifyURL, tutorial string) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💰 Verify Now", verifyURL)),
	}
	if tutorial != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📺 How to Verify?", tutorial)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func userStatsMessage(rec domain.UserRecord, limit int, autoForward bool) string {
	verification := "Not Verified"
	if rec.IsVerified {
		verification = "Verified"
	}
	forwarding := "Disabled"
	if autoForward {
		forwarding = "Enabled"
	}
	tail := fmt.Sprintf("⏳ Remaining: %d free attempts", rec.RemainingFree(limit))
	if rec.IsVerified {
		tail = "🚀 Status: Unlimited Access"
	}
	joined := "Unknown"
	if !rec.CreatedAt.IsZero() {
		joined = rec.CreatedAt.UTC().Format("2006-01-02")
	}
	return fmt.Sprintf(`👤 Your Stats

📊 Leech Attempts: %d
✅ Verification Status: %s
📅 Joined: %s
📢 Auto-Forward: %s

%s`, rec.TotalAttempts, verification, joined, forwarding, tail)
}

func botStatsMessage(stats domain.Stats, backupChannelID int64, shortlinks bool) string {
	channel := "Not Set"
	if backupChannelID != 0 {
		channel = fmt.Sprintf("%d", backupChannelID)
	}
	shortlinkState := "Disabled"
	if shortlinks {
		shortlinkState = "Enabled"
	}
	return fmt.Sprintf(`

🤖 Bot Stats (Admin Only)

👥 Total Users: %d
✅ Verified Users: %d
📊 Total Attempts: %d
📢 Backup Channel: %s
🔗 Shortlinks: %s`, stats.TotalUsers, stats.VerifiedUsers, stats.TotalAttempts, channel, shortlinkState)
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a moment"
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.Round(time.Second).String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
