package markdown

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/parsemed/constants"
	"github.com/joseph-ayodele/parsemed/internal/common"
)

// Info describes a PDF before conversion.
type Info struct {
	Pages     int
	SizeBytes int64
}

// SniffPDF reports whether the reader starts with the PDF header. The read
// position is restored.
func SniffPDF(rs io.ReadSeeker) (bool, error) {
	head := make([]byte, len(constants.PDFMagic))
	n, err := io.ReadFull(rs, head)
	if _, serr := rs.Seek(0, io.SeekStart); serr != nil {
		return false, serr
	}
	if err != nil && n < len(head) {
		return false, nil
	}
	return bytes.Equal(head, []byte(constants.PDFMagic)), nil
}

// Inspect validates a PDF with pdfcpu in relaxed mode and counts its pages.
func Inspect(rs io.ReadSeeker) (Info, error) {
	ok, err := SniffPDF(rs)
	if err != nil {
		return Info{}, fmt.Errorf("read header: %w", err)
	}
	if !ok {
		return Info{}, common.NewAppError("PDF_ERROR", "not a PDF file", common.ErrUnsupported)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(rs, conf)
	if err != nil {
		return Info{}, common.NewAppError("PDF_ERROR", "unreadable PDF", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return Info{}, common.NewAppError("PDF_ERROR", "page count", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}

	info := Info{Pages: ctx.PageCount}
	if end, err := rs.Seek(0, io.SeekEnd); err == nil {
		info.SizeBytes = end
	}
	return info, nil
}

// InspectFile is Inspect for a file on disk.
func InspectFile(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Inspect(f)
}
