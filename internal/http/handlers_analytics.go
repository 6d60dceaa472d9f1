package http

import "net/http"

func (s *Server) handleSumByCategory(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	totals, err := s.deps.Analytics.SumByCategory(r.Context(), userID(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	year, err := ParseYear(query, s.deps.Analytics.CurrentYear())
	if err != nil {
		writeError(w, r, err)
		return
	}
	txType, err := parseOptionalType(query.Get("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	months, err := s.deps.Analytics.MonthlySummary(r.Context(), userID(r), year, txType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, months)
}
