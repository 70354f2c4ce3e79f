package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/canteen-orderflow/internal/accounts"
	"github.com/imrishuroy/canteen-orderflow/internal/catalog"
	"github.com/imrishuroy/canteen-orderflow/internal/validation"
)

type MenuLister interface {
	List(ctx context.Context, category string) ([]catalog.Item, error)
}

type MenuStore interface {
	MenuLister
	Get(ctx context.Context, itemID string) (*catalog.Item, error)
	Put(ctx context.Context, it catalog.Item) (catalog.Item, error)
	AdjustStock(ctx context.Context, itemID string, delta int64) (*catalog.Item, error)
}

type MenuInvalidator interface {
	Invalidate(ctx context.Context, categories ...string)
}

// RegisterMenuRoutes registers the menu browsing and admin stock routes.
func RegisterMenuRoutes(r gin.IRouter, cfg HandlerConfig) {
	logger := cfg.logger()
	v := validation.New()
	listing := cfg.MenuListing
	if listing == nil {
		listing = cfg.Menu
	}
	invalidate := func(ctx context.Context, category string) {
		if cfg.MenuCache != nil {
			cfg.MenuCache.Invalidate(ctx, category)
		}
	}

	g := r.Group("/menu")

	g.GET("", func(c *gin.Context) {
		items, err := listing.List(c.Request.Context(), c.Query("category"))
		if err != nil {
			respondError(c, logger, err)
			return
		}
		if items == nil {
			items = []catalog.Item{}
		}
		respond(c, http.StatusOK, items)
	})

	g.GET("/:id", func(c *gin.Context) {
		it, err := cfg.Menu.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, logger, err)
			return
		}
		if it == nil {
			respondMessage(c, http.StatusNotFound, "menu item not found")
			return
		}
		respond(c, http.StatusOK, it)
	})

	admin := g.Group("", Identity(cfg.Accounts, logger), RequireRole(accounts.RoleAdmin))

	admin.POST("", func(c *gin.Context) {
		var req validation.CreateMenuItemRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		id := req.ItemID
		if id == "" {
			id = uuid.NewString()
		}
		it, err := cfg.Menu.Put(c.Request.Context(), catalog.Item{
			ItemID:     id,
			Name:       req.Name,
			UnitPrice:  req.UnitPrice,
			Currency:   cfg.currency(),
			StockCount: req.StockCount,
			Category:   req.Category,
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		invalidate(c.Request.Context(), it.Category)
		respond(c, http.StatusCreated, it)
	})

	admin.POST("/:id/stock", func(c *gin.Context) {
		var req validation.AdjustStockRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		it, err := cfg.Menu.AdjustStock(c.Request.Context(), c.Param("id"), req.Delta)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		invalidate(c.Request.Context(), it.Category)
		respond(c, http.StatusOK, it)
	})
}
