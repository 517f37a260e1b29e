package commands

import (
	"fmt"
	"gradewatch/lib/configutil"
	"gradewatch/lib/notify"
	"gradewatch/lib/scrapers/jiaowu"
	"gradewatch/lib/sqliteutil"
	"time"
)

type JiaowuConfig struct {
	Username string `json:"username"`
	// a literal password or `{exec: "command"}` whose stdout is the
	// password, falls back to $GRADEWATCH_JIAOWU_PASSWORD
	Password configutil.Secret `json:"password"`
	// exact display names of the semesters to watch
	Semesters []string `json:"semesters"`
	// minutes between checks, must be at least 10
	IntervalMinutes float64 `json:"interval_minutes"`
	// upper bound in seconds for the random delay added to every check
	JitterSeconds int `json:"jitter_seconds"`
	// email a report for the first snapshot on startup
	SendFirst bool `json:"send_first"`
	// overrides for the cas login url and the portal base url, mostly
	// useful against a test double
	PassportUrl string `json:"passport_url"`
	JiaowuUrl   string `json:"jiaowu_url"`
}

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	// same forms as the jiaowu password, falls back to
	// $GRADEWATCH_SMTP_PASSWORD
	Password configutil.Secret `json:"password"`
	SendTo   []string          `json:"send_to"`
}

type Config struct {
	Jiaowu   JiaowuConfig      `json:"jiaowu"`
	Smtp     SmtpConfig        `json:"smtp"`
	Database sqliteutil.Config `json:"database"`
	// snapshots kept per user in the database, 0 keeps everything
	Keep int64 `json:"keep"`
	// port the status endpoint listens on
	Port int `json:"port"`
}

func (c Config) mailer() (notify.Mailer, error) {
	password, err := c.Smtp.Password.Resolve("GRADEWATCH_SMTP_PASSWORD")
	if err != nil {
		return notify.Mailer{}, fmt.Errorf("smtp password: %w", err)
	}
	return notify.NewMailer(notify.Options{
		Smtp: notify.SmtpConfig{
			Server:       c.Smtp.Server,
			Port:         c.Smtp.Port,
			EmailAddress: c.Smtp.EmailAddress,
			Password:     password,
		},
		SendTo: c.Smtp.SendTo,
	}), nil
}

func (c Config) gradeOptions() (jiaowu.GetGradeOptions, error) {
	password, err := c.Jiaowu.Password.Resolve("GRADEWATCH_JIAOWU_PASSWORD")
	if err != nil {
		return jiaowu.GetGradeOptions{}, fmt.Errorf("jiaowu password: %w", err)
	}
	return jiaowu.GetGradeOptions{
		ClientOptions: jiaowu.ClientOptions{
			PassportUrl: c.Jiaowu.PassportUrl,
			JiaowuUrl:   c.Jiaowu.JiaowuUrl,
		},
		Username:  c.Jiaowu.Username,
		Password:  password,
		Semesters: c.Jiaowu.Semesters,
	}, nil
}

func (c Config) database() sqliteutil.Config {
	database := c.Database
	if database.Path == "" && database.Url == "" {
		database.Path = "gradewatch.db"
	}
	return database
}

func (c Config) interval() time.Duration {
	return time.Duration(c.Jiaowu.IntervalMinutes * float64(time.Minute))
}

func (c Config) jitter() time.Duration {
	return time.Duration(c.Jiaowu.JitterSeconds) * time.Second
}

func (c Config) statusPort() int {
	if c.Port == 0 {
		return 8000
	}
	return c.Port
}
