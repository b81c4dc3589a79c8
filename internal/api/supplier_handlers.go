package api

import (
	"bytes"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mealsense/mealsense_core/internal/demand"
	"github.com/mealsense/mealsense_core/internal/mentor"
	"github.com/mealsense/mealsense_core/internal/supplier"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SupplierPlan handles GET /v1/supplier/plan?name=
func (h *Handler) SupplierPlan(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		return badRequest(c, "missing required parameter: name")
	}

	return c.JSON(supplier.BuildPlan(h.deps.Catalogue, name))
}

// ImagePlanResponse is the result of an image upload
type ImagePlanResponse struct {
	Image supplier.ImageInfo `json:"image"`
	Plan  supplier.Plan      `json:"plan"`
}

// SupplierPlanImage handles POST /v1/supplier/plan/image (multipart "image", optional "name")
func (h *Handler) SupplierPlanImage(c *fiber.Ctx) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "missing image upload")
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := supplier.InspectImage(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_image",
			"message": "the upload is not a readable image",
		})
	}

	name, err := supplier.NameFromUpload(c.FormValue("name"), fh.Filename)
	if errors.Is(err, supplier.ErrNameRequired) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "name_required",
			"message": "enter the product name; it could not be derived from the file",
		})
	}

	return c.JSON(ImagePlanResponse{
		Image: info,
		Plan:  supplier.BuildPlan(h.deps.Catalogue, name),
	})
}

// SupplierDashboard handles GET /v1/supplier/dashboard
func (h *Handler) SupplierDashboard(c *fiber.Ctx) error {
	summary, err := h.deps.Dashboard.Summary(c.UserContext())
	if err != nil {
		return h.demandUnavailable(c, err)
	}
	return c.JSON(summary)
}

// SupplierReport handles GET /v1/supplier/report.xlsx
func (h *Handler) SupplierReport(c *fiber.Ctx) error {
	summary, err := h.deps.Dashboard.Summary(c.UserContext())
	if err != nil {
		return h.demandUnavailable(c, err)
	}
	entries, err := h.deps.Dashboard.Entries()
	if err != nil {
		return h.demandUnavailable(c, err)
	}

	var buf bytes.Buffer
	if err := demand.WriteXLSX(&buf, summary, entries); err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="mealsense_demand_report.xlsx"`)
	return c.Send(buf.Bytes())
}

// Mentor handles GET /v1/mentor?q=
func (h *Handler) Mentor(c *fiber.Ctx) error {
	q := c.Query("q")
	answer, found := mentor.Answer(q)
	return c.JSON(fiber.Map{
		"question": q,
		"answer":   answer,
		"found":    found,
	})
}
