package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/facturia-app/facturia/internal/verifactu"
)

// DownloadSignedXML serves the signed Facturae document. The XML is the
// legally binding artifact; it only exists once signing has happened.
func (s *Server) DownloadSignedXML(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if len(inv.SignedXML) == 0 {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", artifactName(inv.Series, inv.Number, "xml")))
	c.Data(http.StatusOK, "application/xml", inv.SignedXML)
}

func (s *Server) DownloadPDF(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	inv, lines, err := s.invoiceSvc.GetWithLines(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !inv.Numbered() {
		AbortWithError(c, ErrNotFound)
		return
	}

	fingerprint, err := verifactu.Fingerprint(inv)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	qr, err := s.qr.RenderImage(fingerprint)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.pdfRenderer.Render(inv, lines, fingerprint, qr.PNG)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", artifactName(inv.Series, inv.Number, "pdf")))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) DownloadQR(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !inv.Numbered() {
		AbortWithError(c, ErrNotFound)
		return
	}

	fingerprint, err := verifactu.Fingerprint(inv)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	qr, err := s.qr.RenderImage(fingerprint)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !qr.Available {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.Data(http.StatusOK, "image/png", qr.PNG)
}

func artifactName(series string, number int64, ext string) string {
	return fmt.Sprintf("%s-%06d.%s", series, number, ext)
}
