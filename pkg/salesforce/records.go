package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Account is the subset of a Salesforce Account read during handoff.
type Account struct {
	ID       string `json:"Id" salesforce:"Id"`
	Name     string `json:"Name" salesforce:"Name"`
	Website  string `json:"Website" salesforce:"Website"`
	Industry string `json:"Industry" salesforce:"Industry"`
}

// FindAccountByWebsite returns the first Account whose Website contains
// domain, or nil when there is none.
func FindAccountByWebsite(ctx context.Context, c Client, domain string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Name, Website, Industry FROM Account WHERE Website LIKE '%%%s%%' LIMIT 1",
		escapeSoql(domain),
	)
	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrapf(err, "sf: find account by website %s", domain)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// CreateAccount creates an Account and returns its ID.
func CreateAccount(ctx context.Context, c Client, fields map[string]any) (string, error) {
	if name, _ := fields["Name"].(string); name == "" {
		return "", eris.New("sf: account Name is required")
	}
	id, err := c.InsertOne(ctx, "Account", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create account")
	}
	return id, nil
}

// CreateContact creates a Contact under accountID and returns its ID.
func CreateContact(ctx context.Context, c Client, accountID string, fields map[string]any) (string, error) {
	if accountID == "" {
		return "", eris.New("sf: account id is required for contact")
	}
	if ln, _ := fields["LastName"].(string); ln == "" {
		return "", eris.New("sf: contact LastName is required")
	}
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["AccountId"] = accountID
	id, err := c.InsertOne(ctx, "Contact", body)
	if err != nil {
		return "", eris.Wrapf(err, "sf: create contact for account %s", accountID)
	}
	return id, nil
}

// CreateTask attaches a follow-up Task to the record whatID (an Account).
func CreateTask(ctx context.Context, c Client, whatID, subject, description string) (string, error) {
	if whatID == "" {
		return "", eris.New("sf: task WhatId is required")
	}
	id, err := c.InsertOne(ctx, "Task", map[string]any{
		"WhatId":      whatID,
		"Subject":     subject,
		"Description": description,
		"Status":      "Not Started",
		"Priority":    "High",
	})
	if err != nil {
		return "", eris.Wrapf(err, "sf: create task for %s", whatID)
	}
	return id, nil
}

// escapeSoql escapes characters that are special inside SOQL string literals.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
