package providers

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/orchestra-mcp/listsync/src/auth"
	"github.com/orchestra-mcp/listsync/src/types"
)

type localsKey int

const claimsKey localsKey = 0

// requireAuth verifies the bearer credential, revocation included, and
// stores the claims for the next handler.
func (p *SyncProvider) requireAuth(c fiber.Ctx) error {
	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing_token"})
	}
	claims, err := p.verifier.Verify(p.ctx, token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_token"})
	}
	c.Locals(claimsKey, claims)
	return c.Next()
}

func claimsFrom(c fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(claimsKey).(*auth.Claims)
	return claims
}

func (p *SyncProvider) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket":   true,
		"endpoint":    SocketPath,
		"instance_id": p.relay.InstanceID(),
		"sessions":    p.hub.SessionCount(),
		"scopes":      len(p.hub.Scopes()),
	})
}

// ownSessions returns this process's sessions of the caller's account.
func (p *SyncProvider) ownSessions(accountID string) []types.SessionInfo {
	infos := make([]types.SessionInfo, 0)
	for _, id := range p.hub.Sessions() {
		info := p.hub.SessionInfo(id)
		if info != nil && info.AccountID == accountID {
			infos = append(infos, *info)
		}
	}
	return infos
}

func (p *SyncProvider) handleSessions(c fiber.Ctx) error {
	infos := p.ownSessions(claimsFrom(c).AccountID)
	return c.JSON(fiber.Map{
		"sessions": infos,
		"count":    len(infos),
	})
}

func (p *SyncProvider) handleScopes(c fiber.Ctx) error {
	counts := p.hub.Scopes()
	seen := make(map[string]struct{})
	for _, info := range p.ownSessions(claimsFrom(c).AccountID) {
		for _, scope := range info.Scopes {
			seen[scope] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for scope := range seen {
		names = append(names, scope)
	}
	sort.Strings(names)

	result := make([]fiber.Map, 0, len(names))
	for _, scope := range names {
		result = append(result, fiber.Map{
			"scope":       scope,
			"subscribers": counts[scope],
		})
	}
	return c.JSON(fiber.Map{"scopes": result, "count": len(result)})
}

// handleSignOut revokes the caller's credential for the rest of its
// lifetime, on every process sharing the broker. If the broker is down
// the credential stays valid until it expires; the registry logs that.
func (p *SyncProvider) handleSignOut(c fiber.Ctx) error {
	claims := claimsFrom(c)
	remaining := claims.Remaining(p.clock.Now())
	if remaining <= 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}
	p.revocations.Revoke(p.ctx, claims.TokenID, remaining)
	return c.SendStatus(fiber.StatusNoContent)
}
