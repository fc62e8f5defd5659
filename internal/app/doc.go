// Package app composes the VitalSync health services into a running application.
//
// # Architecture Role
//
// The app package wires storage, infrastructure and services together and owns
// their lifecycle. Business rules live in internal/app/services; HTTP handling
// lives in internal/app/httpapi.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── account/        # Accounts and sessions
//	│   ├── profile/        # Health profiles, care team, widgets
//	│   ├── fitness/        # Goals, activity logs, daily and weekly stats
//	│   ├── glucose/        # Blood glucose readings
//	│   ├── medication/     # Medications and dose logs
//	│   ├── appointment/    # Provider appointments
//	│   ├── challenge/      # Challenges, memberships, leaderboards
//	│   └── notification/   # In-app notifications
//	├── storage/            # Store interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces
//	│   ├── memory/         # In-memory implementation
//	│   └── postgres/       # PostgreSQL implementation
//	├── services/           # Business logic, one package per domain
//	├── httpapi/            # Routing, handlers, audit log
//	├── runtime/            # Config-driven construction and HTTP server
//	├── system/             # Background service lifecycle manager
//	└── metrics/            # Prometheus collectors
//
// # Dependency Direction
//
//	cmd/gateway/
//	      │
//	      ▼
//	internal/app/runtime ──► internal/app/httpapi
//	      │                        │
//	      ▼                        ▼
//	internal/app (composition) ──► internal/app/services ──► internal/app/storage
//
// # Adding a New Domain
//
//  1. Create domain models in internal/app/domain/<name>/
//  2. Add the store interface to internal/app/storage/interfaces.go
//  3. Implement it in internal/app/storage/memory/ and postgres/, with a migration
//  4. Create the service in internal/app/services/<name>/
//  5. Wire the service in internal/app/application.go
//  6. Add handlers and routes in internal/app/httpapi/
package app
