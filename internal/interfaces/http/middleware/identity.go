package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/procurement/backend/internal/interfaces/http/dto"
)

// Caller identity headers. Authentication happens in front of this service;
// the gateway forwards who is calling.
const (
	HeaderPartnerID = "X-Partner-ID"
	HeaderBuyerID   = "X-Buyer-ID"
	HeaderActor     = "X-Actor"

	partnerIDKey = "partner_id"
	buyerIDKey   = "buyer_id"
)

// RequirePartner rejects requests without a valid X-Partner-ID
func RequirePartner() gin.HandlerFunc {
	return requireIdentity(HeaderPartnerID, partnerIDKey)
}

// RequireBuyer rejects requests without a valid X-Buyer-ID
func RequireBuyer() gin.HandlerFunc {
	return requireIdentity(HeaderBuyerID, buyerIDKey)
}

func requireIdentity(header, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(header)
		id, err := uuid.Parse(raw)
		if raw == "" || err != nil || id == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(
				dto.ErrCodeMissingIdentity,
				header+" header must carry a caller id",
				GetRequestID(c),
			))
			return
		}
		c.Set(key, id)
		c.Next()
	}
}

// PartnerID returns the partner set by RequirePartner
func PartnerID(c *gin.Context) uuid.UUID {
	return idFrom(c, partnerIDKey)
}

// BuyerID returns the buyer set by RequireBuyer
func BuyerID(c *gin.Context) uuid.UUID {
	return idFrom(c, buyerIDKey)
}

func idFrom(c *gin.Context, key string) uuid.UUID {
	if v, ok := c.Get(key); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// Actor names the caller for audit records: X-Actor when given, otherwise the
// partner or buyer id, otherwise "anonymous"
func Actor(c *gin.Context) string {
	if v := c.GetHeader(HeaderActor); v != "" {
		return v
	}
	if id := PartnerID(c); id != uuid.Nil {
		return "partner:" + id.String()
	}
	if id := BuyerID(c); id != uuid.Nil {
		return "buyer:" + id.String()
	}
	return "anonymous"
}
