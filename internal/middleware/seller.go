package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	sellerIDKey = "seller_id"
	shopIDKey   = "shop_id"
)

// SellerMiddleware extracts the seller and shop the request acts for.
// Requests without a seller are rejected; the shop defaults to the seller.
func SellerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prefer identity already placed in context by the auth layer
		sellerID := c.GetString(sellerIDKey)
		if sellerID == "" {
			sellerID = c.GetHeader("X-Seller-ID")
		}

		// Fail closed
		if sellerID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "SELLER_REQUIRED",
					"message": "Seller ID is required. Include the X-Seller-ID header.",
				},
			})
			c.Abort()
			return
		}

		shopID := c.GetString(shopIDKey)
		if shopID == "" {
			shopID = c.GetHeader("X-Shop-ID")
		}
		if shopID == "" {
			shopID = sellerID
		}

		c.Set(sellerIDKey, sellerID)
		c.Set(shopIDKey, shopID)
		c.Next()
	}
}

// GetSellerID retrieves the seller ID from gin context
func GetSellerID(c *gin.Context) string {
	return c.GetString(sellerIDKey)
}

// GetShopID retrieves the shop ID from gin context
func GetShopID(c *gin.Context) string {
	if id := c.GetString(shopIDKey); id != "" {
		return id
	}
	return GetSellerID(c)
}
