package authkit

import "log"

// CodeMailer delivers sign-in codes. Implementations report success or
// failure only; there is no delivery-status callback.
type CodeMailer interface {
	SendSignInCode(to string, code string, purpose string) error
}

// ConsoleCodeMailer is a development implementation that logs codes to console
type ConsoleCodeMailer struct{}

func (c *ConsoleCodeMailer) SendSignInCode(to, code, purpose string) error {
	log.Printf("\n=== EMAIL: Sign-in code ===")
	log.Printf("To: %s", to)
	log.Printf("Subject: Your LyriaSong verification code")
	log.Printf("Body: Your code is %s (purpose: %s). It expires shortly.", code, purpose)
	log.Printf("===========================\n")
	return nil
}
