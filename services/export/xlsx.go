package exportsvc

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/syaifulazham/techlympics/core/attendance"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	timeLayout  = "2006-01-02 15:04:05"
)

// XLSXExporter writes the attendance of an event as a workbook with one sheet per entity.
type XLSXExporter struct {
	loc *time.Location
}

var _ attendance.Exporter = (*XLSXExporter)(nil)

func NewXLSXExporter(loc *time.Location) *XLSXExporter {
	if loc == nil {
		loc = time.UTC
	}
	return &XLSXExporter{loc: loc}
}

type sheet struct {
	name    string
	headers []interface{}
	rows    [][]interface{}
}

func (x *XLSXExporter) Export(w io.Writer, data attendance.ExportData) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}

	for i, s := range x.sheets(data) {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return errors.Wrap(err, "renaming sheet")
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return errors.Wrap(err, "creating sheet "+s.name)
		}
		if err := writeSheet(f, s, bold); err != nil {
			return errors.Wrap(err, "writing sheet "+s.name)
		}
	}
	f.SetActiveSheet(0)
	if data.EventName != "" {
		_ = f.SetDocProps(&excelize.DocProperties{Title: data.EventName + " - Attendance"})
	}
	return f.Write(w)
}

func writeSheet(f *excelize.File, s sheet, headerStyle int) error {
	if err := f.SetSheetRow(s.name, "A1", &s.headers); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(s.headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(s.name, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, row := range s.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(s.name, cell, &row); err != nil {
			return err
		}
	}
	return f.SetPanes(s.name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (x *XLSXExporter) sheets(data attendance.ExportData) []sheet {
	contingents := sheet{name: "Contingents", headers: []interface{}{"No.", "Contingent ID", "Contingent", "State", "Status", "Attendance Time"}}
	for i, c := range data.Contingents {
		contingents.rows = append(contingents.rows, []interface{}{i + 1, c.ContingentID, c.Name, c.State, c.AttendanceStatus, x.formatTime(c.AttendanceTime)})
	}

	teams := sheet{name: "Teams", headers: []interface{}{"No.", "Team ID", "Team", "Contingent", "State", "Status", "Attendance Time"}}
	for i, t := range data.Teams {
		teams.rows = append(teams.rows, []interface{}{i + 1, t.TeamID, t.Name, t.Contingent, t.State, t.AttendanceStatus, x.formatTime(t.AttendanceTime)})
	}

	contestants := sheet{name: "Contestants", headers: []interface{}{"No.", "Contestant ID", "Name", "IC", "Team", "Contingent", "Contest", "Contest Group", "State", "Status", "Attendance Time"}}
	for i, c := range data.Contestants {
		contestants.rows = append(contestants.rows, []interface{}{
			i + 1, c.ContestantID, c.Name, c.IC, c.Team, c.Contingent, c.ContestName,
			c.ContestGroup, c.State, c.AttendanceStatus, x.formatTime(c.AttendanceTime),
		})
	}

	managers := sheet{name: "Managers", headers: []interface{}{"No.", "Manager ID", "Name", "Email", "Contingent", "State", "Email Status", "Status", "Attendance Time"}}
	for i, m := range data.Managers {
		managers.rows = append(managers.rows, []interface{}{
			i + 1, m.ManagerID, m.Name, m.Email, m.Contingent, m.State,
			m.EmailStatus, m.AttendanceStatus, x.formatTime(m.AttendanceTime),
		})
	}
	return []sheet{contingents, teams, contestants, managers}
}

func (x *XLSXExporter) formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(x.loc).Format(timeLayout)
}
