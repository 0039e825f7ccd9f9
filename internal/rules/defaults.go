package rules

// Default returns the built-in rule set. Every call returns a fresh copy.
func Default() *Set {
	return &Set{
		Extraction: ExtractionRules{
			CertificationKeywords: []string{
				"certificação", "certificado", "norma", "iso", "inmetro",
				"anvisa", "abnt", "regulamento", "registro",
			},
			DocumentTypes: []Category{
				{Name: "edital", Keywords: []string{"edital", "pregão", "licitação"}},
				{Name: "termo_referencia", Keywords: []string{"termo de referência", "tr", "especificação"}},
				{Name: "contrato", Keywords: []string{"contrato", "acordo", "ajuste"}},
				{Name: "proposta", Keywords: []string{"proposta", "oferta", "cotação"}},
				{Name: "ata_registro_precos", Keywords: []string{"ata", "registro de preços"}},
			},
			DocumentFallback: "documento_generico",
			TableTypes: []Category{
				{Name: "produtos_servicos", Keywords: []string{"item", "produto", "serviço", "descrição"}},
				{Name: "financeiro", Keywords: []string{"preço", "valor", "custo", "orçamento"}},
				{Name: "cronograma", Keywords: []string{"prazo", "cronograma", "data", "período"}},
				{Name: "especificacao_tecnica", Keywords: []string{"especificação", "técnico", "característica"}},
			},
			TableFallback: "geral",
			ProductKeywords: []string{
				"item", "produto", "serviço", "descrição", "especificação",
				"código", "material", "equipamento", "fornecimento",
			},
			ProductKeywordMinimum: 2,
			ComplexityHighCells:   50,
			ComplexityMediumCells: 10,
		},
		Risk: RiskRules{
			RestrictiveSpecTerms: []string{
				"especificação restritiva", "marca específica", "modelo único",
				"tecnologia proprietária", "certificação específica", "norma restritiva",
				"compatibilidade", "integração", "customização", "desenvolvimento",
			},
			BrandPatterns: []string{
				`marca\s+[A-Z][a-z]+`,
				`fabricante\s+[A-Z][a-z]+`,
				`modelo\s+[A-Z0-9\-]+`,
			},
			BrandMatchThreshold:     3,
			IntegrationTerms:        []string{"integração", "compatibilidade", "customização"},
			PenaltyPercentThreshold: 20,
			LiabilityTerms: []string{
				"responsabilidade integral", "responsabilidade total", "responsabilidade exclusiva",
				"indenização total", "ressarcimento integral",
			},
			ComplianceTerms: []string{
				"certificação obrigatória", "registro obrigatório", "licença específica",
				"conformidade regulatória", "norma específica",
			},
			UpfrontPaymentTerm: "à vista",
			SingleSupplierTerms: []string{
				"único fornecedor", "exclusividade", "fornecedor exclusivo",
				"representante exclusivo", "distribuidor autorizado",
			},
			HighValueThreshold:      1_000_000,
			WarrantyMonthsThreshold: 24,
			ShortDeliveryDays:       15,
			RemoteLocationTerms: []string{
				"interior", "zona rural", "área remota", "difícil acesso",
				"região isolada", "localidade distante",
			},
			SpecialHandlingTerms: []string{
				"refrigerado", "congelado", "temperatura controlada", "frágil",
				"perigoso", "controlado", "esterilizado", "asséptico",
			},
			InstallationTerms: []string{"instalação", "montagem", "configuração"},
		},
		Opportunity: OpportunityRules{
			VolumeThreshold:      1000,
			HighVolumeThreshold:  10000,
			QuantityTableTerms:   []string{"quantidade", "qtd", "unidades"},
			HighValueThreshold:   1_000_000,
			MediumValueThreshold: 100_000,
			RecurringTerms: []string{
				"renovação", "prorrogação", "fornecimento continuado", "contrato plurianual",
				"demanda permanente", "necessidade contínua", "suprimento regular", "ata de registro",
			},
			FrameworkTerms:    []string{"ata de registro de preços", "acordo quadro", "contrato guarda-chuva"},
			LongContractYears: 2,
			StrategicTerms: []string{
				"estratégico", "prioritário", "essencial", "crítico", "fundamental",
				"modernização", "inovação", "tecnologia avançada", "diferencial competitivo",
				"projeto especial", "iniciativa prioritária",
			},
			InnovationTerms: []string{
				"inovação", "modernização", "digitalização", "transformação digital",
				"tecnologia de ponta", "solução inovadora", "estado da arte",
			},
			Sectors: []Sector{
				{
					Keyword:     "saúde",
					Description: "Oportunidade no setor de saúde pública",
					Importance:  "high",
					Actions: []string{
						"Verificar conformidade com regulamentações sanitárias",
						"Destacar benefícios para saúde pública",
						"Demonstrar experiência no setor de saúde",
					},
				},
				{
					Keyword:     "educação",
					Description: "Oportunidade no setor educacional",
					Importance:  "medium",
					Actions: []string{
						"Alinhar proposta com políticas educacionais",
						"Destacar impacto na qualidade do ensino",
						"Demonstrar adequação ao ambiente escolar",
					},
				},
				{
					Keyword:     "segurança",
					Description: "Oportunidade no setor de segurança pública",
					Importance:  "high",
					Actions: []string{
						"Evidenciar conformidade com normas de segurança",
						"Destacar contribuição para segurança pública",
						"Demonstrar confiabilidade e robustez",
					},
				},
			},
			TechnologyTerms: []string{
				"inteligência artificial", "machine learning", "iot", "internet das coisas",
				"big data", "analytics", "cloud", "nuvem", "blockchain", "automação",
				"robotização", "indústria 4.0", "digital twin",
			},
			SustainabilityTerms: []string{
				"sustentabilidade", "sustentável", "verde", "eco", "ambiental",
				"carbono neutro", "energia renovável", "eficiência energética",
				"economia circular", "responsabilidade social",
			},
		},
		Quality: QualityRules{
			RequiredFields: []string{
				"numero_pregao", "uasg", "orgao", "objeto",
				"valor_estimado", "data_abertura", "modalidade",
			},
			Thresholds: Thresholds{Excellent: 0.9, Good: 0.7, Fair: 0.5},
		},
	}
}
