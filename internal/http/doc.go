// Package httpapp provides the HTTP server for Connectly.
//
//	@title						Connectly API
//	@version					1.0
//	@description				A social posting platform with token authentication and role-based access control.
//	@description
//	@description				## Authentication Flow
//	@description
//	@description				All write operations (posts, comments) require a bearer token.
//	@description
//	@description				### Step 1: Register
//	@description				```bash
//	@description				curl -X POST /api/users -d '{"username":"alice","email":"alice@example.com","password":"secret"}'
//	@description				```
//	@description
//	@description				### Step 2: Log In
//	@description				```bash
//	@description				curl -X POST /api/login -d '{"username":"alice","password":"secret"}'
//	@description				# Returns: {"token": "TOKEN", "expires_at": ...}
//	@description				```
//	@description
//	@description				### Step 3: Use Token for Writes
//	@description				```bash
//	@description				curl -X POST /api/posts -H "Authorization: Bearer TOKEN" -d '{"content":"hello"}'
//	@description				```
//	@description
//	@description				## Roles
//	@description				| Role | Capabilities |
//	@description				|-----------|------------|
//	@description				| admin | Full access, runtime configuration |
//	@description				| moderator | Edit or remove any post or comment |
//	@description				| user | Manage own posts and comments |
//
//	@contact.name				Connectly
//	@license.name				MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token from /api/login
//
//	@tag.name					Users
//	@tag.description			Registration and profile lookup.
//
//	@tag.name					Authentication
//	@tag.description			Password login issuing opaque bearer tokens.
//
//	@tag.name					Posts
//	@tag.description			Create and browse posts. Typed posts (image, video, article, poll) carry validated metadata.
//
//	@tag.name					Comments
//	@tag.description			Comment on posts. Each comment carries a short preview of its post.
//
//	@tag.name					Config
//	@tag.description			Runtime settings. Reads require authentication, writes require the admin role.
//
//	@tag.name					Admin
//	@tag.description			Moderation endpoints. Require the moderator or admin role.
package httpapp
