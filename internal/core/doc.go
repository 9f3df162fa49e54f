// Package core implements the bulk import pipeline: column mapping, row
// projection, validation, reconciliation of unknown references and the
// commit of approved rows as a Dataset.
//
// This package holds all import logic independent of any UI or transport
// layer. It is used by the web handlers, the importctl CLI and tests
// without modification.
//
// # Import Kinds
//
// Each import kind (product, material, sale) is registered at init time using
// [Register]. A [KindDefinition] lists the canonical fields the kind accepts,
// which of them are required, the header synonyms used by [AutoMap] and the
// catalog entity kinds it creates or references:
//
//	core.Register(core.KindDefinition{
//	    Info: core.KindInfo{Key: "product", Label: "Products", Entity: catalog.KindProduct},
//	    Fields: []core.FieldSpec{
//	        {Field: core.FieldName, Required: true, Synonyms: []string{"name", "نام"}},
//	        {Field: core.FieldPrice, Required: true, Bound: core.BoundNonNegative},
//	    },
//	})
//
// # Session Lifecycle
//
// A [Session] moves through explicit stages:
//
//	upload -> mapping -> preview -> (reconciliation_pending) -> committing -> committed
//
// with failed reachable when a commit write fails and cancelled reachable by
// operator action. Every transition is guarded; calling an operation in the
// wrong stage returns [ErrInvalidTransition]. One mutex per session
// serializes the stages.
//
//  1. [Session.Upload] parses the file and auto-maps columns
//  2. [Session.SetColumn] adjusts the mapping; manual choices always win
//  3. [Session.GeneratePreview] projects and validates every row
//  4. [Session.SetSelected] / [Session.EditRecord] adjust the approved set
//  5. [Session.Commit] reconciles references and hands eligible rows to the [CommitExecutor]
//
// # Error Handling
//
// Row problems never fail an operation; they are recorded on the
// [CandidateRecord]. Operation-level failures are sentinel errors
// ([ErrMappingIncomplete], [ErrUnresolvedEntities], [ErrNothingToCommit], ...)
// which [MapError] turns into coded user messages.
package core
