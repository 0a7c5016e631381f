package handlers

import (
	"io"

	"github.com/gin-gonic/gin"
)

// StockStream pushes stock changes to the browser over server-sent events.
// Each settled checkout produces one event per affected product.
func (h *Handler) StockStream(c *gin.Context) {
	ch, cancel := h.hub.Subscribe()
	defer cancel()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case change, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("stock", change)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
