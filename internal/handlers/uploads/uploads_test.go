package uploads

import "testing"

func TestFileExtensionAcceptsTabularFormats(t *testing.T) {
	tests := []struct {
		filename    string
		wantExt     string
		wantContent string
	}{
		{"accounts.csv", ".csv", "text/csv"},
		{"Accounts.CSV", ".csv", "text/csv"},
		{"legacy.xls", ".xls", "application/vnd.ms-excel"},
		{"export.XLSX", ".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"dir/report.q3.csv", ".csv", "text/csv"},
	}
	for _, tc := range tests {
		ext, contentType, ok := fileExtension(tc.filename)
		if !ok {
			t.Errorf("fileExtension(%q) rejected, want accepted", tc.filename)
			continue
		}
		if ext != tc.wantExt || contentType != tc.wantContent {
			t.Errorf("fileExtension(%q) = (%q, %q), want (%q, %q)", tc.filename, ext, contentType, tc.wantExt, tc.wantContent)
		}
	}
}

func TestFileExtensionRejectsEverythingElse(t *testing.T) {
	for _, filename := range []string{"", "report", "report.pdf", "report.csv.exe", "archive.zip", ".csvx"} {
		if _, _, ok := fileExtension(filename); ok {
			t.Errorf("fileExtension(%q) accepted, want rejected", filename)
		}
	}
}
