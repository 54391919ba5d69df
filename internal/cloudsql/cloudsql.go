// Package cloudsql resolves the PostgreSQL connection string for both
// local development (DATABASE_URL) and Cloud Run with a Cloud SQL
// Unix-socket mount.
package cloudsql

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
)

// BuildDatabaseURL returns the connection string to use. DATABASE_URL
// takes precedence; otherwise the Cloud SQL variables
// (INSTANCE_CONNECTION_NAME, DB_USER, DB_PASSWORD, DB_NAME) are
// assembled into a keyword string against the socket Cloud Run mounts
// under /cloudsql/<instance>.
func BuildDatabaseURL() (string, error) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	instance := os.Getenv("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", fmt.Errorf("neither DATABASE_URL nor INSTANCE_CONNECTION_NAME is set")
	}

	user := os.Getenv("DB_USER")
	name := os.Getenv("DB_NAME")
	if user == "" || name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	connStr := fmt.Sprintf("host=/cloudsql/%s user=%s dbname=%s sslmode=disable",
		instance, user, name)
	// IAM authentication runs without a password.
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		connStr += " password=" + password
	}
	return connStr, nil
}

// ConnectionAttrs returns loggable connection details with credentials
// redacted.
func ConnectionAttrs() map[string]string {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return map[string]string{
			"connection_type": "direct",
			"database_url":    Redact(dbURL),
		}
	}
	if instance := os.Getenv("INSTANCE_CONNECTION_NAME"); instance != "" {
		return map[string]string{
			"connection_type": "cloud_sql",
			"instance":        instance,
			"user":            os.Getenv("DB_USER"),
			"database":        os.Getenv("DB_NAME"),
		}
	}
	return map[string]string{"connection_type": "none"}
}

var keywordPasswordRe = regexp.MustCompile(`password=\S+`)

// Redact strips the password from a connection string so it can be
// logged.
func Redact(connStr string) string {
	if u, err := url.Parse(connStr); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		return u.Redacted()
	}
	return keywordPasswordRe.ReplaceAllString(connStr, "password=***")
}
