package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/wetrade/internal/account"
	"github.com/betbot/wetrade/internal/domain"
)

type statusResponse struct {
	Uptime     string          `json:"uptime"`
	Account    *account.Status `json:"account,omitempty"`
	OpenOrders int             `json:"open_orders"`
	Quotes     *quoteStatus    `json:"quotes,omitempty"`
}

type quoteStatus struct {
	Monitoring bool `json:"monitoring"`
	Symbols    int  `json:"symbols"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{Uptime: time.Since(s.started).Truncate(time.Second).String()}
	if s.cfg.Account != nil {
		st := s.cfg.Account.Status()
		resp.Account = &st
	}
	if s.cfg.Orders != nil {
		for _, o := range s.cfg.Orders.Snapshots() {
			if !o.Status.IsTerminal() {
				resp.OpenOrders++
			}
		}
	}
	if s.cfg.Quotes != nil {
		resp.Quotes = &quoteStatus{
			Monitoring: s.cfg.Quotes.Monitoring(),
			Symbols:    len(s.cfg.Quotes.Snapshots()),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleOrders(c *gin.Context) {
	if s.cfg.Orders == nil {
		writeErr(c, http.StatusNotFound, "orders not available")
		return
	}
	orders := s.cfg.Orders.Snapshots()
	if st := c.Query("status"); st != "" {
		want := domain.NormalizeOrderStatus(st)
		filtered := orders[:0]
		for _, o := range orders {
			if o.Status == want {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) handleOrderEvents(c *gin.Context) {
	if s.cfg.Journal == nil {
		writeErr(c, http.StatusNotFound, "journal not configured")
		return
	}
	evs, err := s.cfg.Journal.ForOrder(c.Request.Context(), c.Param("orderID"))
	if err != nil {
		writeErr(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

func (s *Server) handleQuotes(c *gin.Context) {
	if s.cfg.Quotes == nil {
		writeErr(c, http.StatusNotFound, "quotes not available")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"monitoring": s.cfg.Quotes.Monitoring(),
		"quotes":     s.cfg.Quotes.Snapshots(),
	})
}

// handleEvents 优先读 journal（?limit=），否则返回内存中最近的事件
func (s *Server) handleEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if s.cfg.Journal != nil {
		evs, err := s.cfg.Journal.Recent(c.Request.Context(), limit)
		if err != nil {
			writeErr(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": evs})
		return
	}
	if s.cfg.Events == nil {
		writeErr(c, http.StatusNotFound, "events not available")
		return
	}
	evs := s.cfg.Events.Recent()
	if limit > 0 && len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

func writeErr(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}
