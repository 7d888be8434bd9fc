// Package repository holds the gorm implementations of the stores the
// crm and services packages depend on.
package repository

import "realtorvoice/internal/crm"

var (
	_ crm.CredentialStore = (*CredentialRepo)(nil)
	_ crm.ConnectionStore = (*UserRepo)(nil)
)
