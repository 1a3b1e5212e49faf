// Package models contains GORM persistence models. They are kept apart from
// the domain entities so the domain stays free of ORM tags.
//
// Table names are never schema-qualified. The namespace a table resolves to
// is decided by the search path of the connection the transaction runs on:
//   - tenant tables (products) exist once per tenant namespace and are
//     created by AutoMigrate during onboarding;
//   - default-namespace tables (audit_events) are created by SQL migrations.
package models
